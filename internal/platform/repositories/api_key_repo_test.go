package repositories

import (
	"fmt"
	"testing"

	"toollink/internal/platform/models"
)

func TestAPIKeyRepository_CreateCapped(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewAPIKeyRepository(db)

	if _, err := db.Exec(`INSERT INTO users (id, email, is_active, created_at, updated_at) VALUES ('usr_1', 'a@example.com', 1, 0, 0)`); err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}

	newKey := func(n int) *models.APIKey {
		return &models.APIKey{
			UserID:   "usr_1",
			Label:    fmt.Sprintf("key %d", n),
			Prefix:   fmt.Sprintf("pref%04d", n),
			KeyHash:  "digest",
			IsActive: true,
		}
	}

	for i := 0; i < 3; i++ {
		inserted, err := repo.CreateCapped(newKey(i), 3)
		if err != nil {
			t.Fatalf("Failed to create key %d: %v", i, err)
		}
		if !inserted {
			t.Fatalf("Key %d blocked below the cap", i)
		}
	}

	// fourth insert must lose to the cap inside the statement itself,
	// even though no caller counted beforehand
	inserted, err := repo.CreateCapped(newKey(3), 3)
	if err != nil {
		t.Fatalf("Create at cap errored: %v", err)
	}
	if inserted {
		t.Error("Insert succeeded past the active-key cap")
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM api_keys WHERE user_id = 'usr_1'`).Scan(&count); err != nil {
		t.Fatalf("Failed to count keys: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 stored keys, got %d", count)
	}

	// revoking one frees a slot for the conditional insert
	var victim string
	if err := db.QueryRow(`SELECT id FROM api_keys WHERE user_id = 'usr_1' LIMIT 1`).Scan(&victim); err != nil {
		t.Fatalf("Failed to pick a key: %v", err)
	}
	if err := repo.Revoke(victim); err != nil {
		t.Fatalf("Failed to revoke: %v", err)
	}
	inserted, err = repo.CreateCapped(newKey(4), 3)
	if err != nil || !inserted {
		t.Errorf("Create after revoke = (%v, %v), want inserted", inserted, err)
	}
}
