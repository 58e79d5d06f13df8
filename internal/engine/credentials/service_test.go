package credentials

import (
	"database/sql"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"toollink/internal/engine/ratelimit"
	"toollink/internal/engine/secrets"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/config"
	"toollink/internal/platform/database"
	"toollink/internal/platform/repositories"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(database.Schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return db
}

func setupService(t *testing.T, db *sql.DB) *Service {
	codec, err := secrets.New(config.CryptoConfig{
		TokenSealKey: "test-seal-key-0123456789",
		APIKeySecret: "test-api-secret-0123456789",
	})
	if err != nil {
		t.Fatalf("Failed to build codec: %v", err)
	}

	return NewService(
		repositories.NewUserRepository(db),
		repositories.NewAPIKeyRepository(db),
		codec,
		ratelimit.New(),
		config.RateLimitConfig{LoginAttempts: 5, LoginWindow: 5 * time.Minute},
	)
}

func TestRegisterAndLogin(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	user, err := svc.Register("a@example.com", "Sup3rSecret")
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if user.ID == "" {
		t.Error("Registered user has no id")
	}
	if user.PasswordHash == "Sup3rSecret" {
		t.Error("Password stored as plaintext")
	}

	got, err := svc.VerifyPassword("a@example.com", "Sup3rSecret")
	if err != nil {
		t.Fatalf("Failed to login: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Login resolved user %s, want %s", got.ID, user.ID)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	if _, err := svc.Register("a@example.com", "Sup3rSecret"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	_, err := svc.Register("a@example.com", "An0therPass")
	if errors.CodeOf(err) != errors.CodeDuplicateEmail {
		t.Errorf("Expected DUPLICATE_EMAIL, got %v", err)
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	for _, password := range []string{"short1A", "alllowercase1", "ALLUPPERCASE1", "NoDigitsHere"} {
		_, err := svc.Register("a@example.com", password)
		if errors.CodeOf(err) != errors.CodeWeakPassword {
			t.Errorf("Register(%q): expected WEAK_PASSWORD, got %v", password, err)
		}
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	_, err := svc.Register("not-an-email", "Sup3rSecret")
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("Expected INVALID_INPUT, got %v", err)
	}
}

func TestLogin_UniformFailure(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	if _, err := svc.Register("a@example.com", "Sup3rSecret"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	// wrong password and unknown email must be indistinguishable
	_, wrongPass := svc.VerifyPassword("a@example.com", "WrongPass1")
	_, unknown := svc.VerifyPassword("ghost@example.com", "WrongPass1")

	if errors.CodeOf(wrongPass) != errors.CodeInvalidCredentials {
		t.Errorf("Wrong password: expected INVALID_CREDENTIALS, got %v", wrongPass)
	}
	if errors.CodeOf(unknown) != errors.CodeInvalidCredentials {
		t.Errorf("Unknown email: expected INVALID_CREDENTIALS, got %v", unknown)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	for i := 0; i < 5; i++ {
		svc.VerifyPassword("a@example.com", "WrongPass1")
	}

	_, err := svc.VerifyPassword("a@example.com", "WrongPass1")
	if errors.CodeOf(err) != errors.CodeRateLimited {
		t.Fatalf("Expected RATE_LIMITED, got %v", err)
	}

	var appErr *errors.Error
	if !stderrors.As(err, &appErr) || appErr.RetryAfter < 1 {
		t.Errorf("Rate limit error carries no Retry-After: %v", err)
	}
}

func TestCreateAPIKey_Format(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	user, err := svc.Register("a@example.com", "Sup3rSecret")
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	plaintext, key, err := svc.CreateAPIKey(user.ID, "ci", "")
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	parts := strings.SplitN(plaintext, "_", 3)
	if len(parts) != 3 || parts[0] != "tlk" {
		t.Fatalf("Key %q does not match tlk_<prefix>_<secret>", plaintext)
	}
	if parts[1] != key.Prefix {
		t.Errorf("Stored prefix %s, plaintext carries %s", key.Prefix, parts[1])
	}
	if key.KeyHash == parts[2] {
		t.Error("Secret stored as plaintext")
	}
	if strings.Contains(key.KeyHash, parts[2]) {
		t.Error("Stored digest embeds the secret")
	}
}

func TestCreateAPIKey_VanityPrefix(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	user, _ := svc.Register("a@example.com", "Sup3rSecret")

	plaintext, _, err := svc.CreateAPIKey(user.ID, "ci", "myteam01")
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}
	if !strings.HasPrefix(plaintext, "tlk_myteam01_") {
		t.Errorf("Key %q does not carry the requested prefix", plaintext)
	}

	_, _, err = svc.CreateAPIKey(user.ID, "ci", "no")
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("Short prefix: expected INVALID_INPUT, got %v", err)
	}
}

func TestCreateAPIKey_LimitAndRevoke(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	user, _ := svc.Register("a@example.com", "Sup3rSecret")

	var firstID string
	for i := 0; i < 5; i++ {
		_, key, err := svc.CreateAPIKey(user.ID, "k", "")
		if err != nil {
			t.Fatalf("Failed to create key %d: %v", i+1, err)
		}
		if i == 0 {
			firstID = key.ID
		}
	}

	_, _, err := svc.CreateAPIKey(user.ID, "excess", "")
	if errors.CodeOf(err) != errors.CodeKeyLimitExceeded {
		t.Fatalf("Expected KEY_LIMIT_EXCEEDED, got %v", err)
	}

	// revoking frees a slot
	if err := svc.RevokeAPIKey(user.ID, firstID); err != nil {
		t.Fatalf("Failed to revoke key: %v", err)
	}
	if _, _, err := svc.CreateAPIKey(user.ID, "replacement", ""); err != nil {
		t.Errorf("Creating a key after revocation failed: %v", err)
	}
}

func TestVerifyAPIKey(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	user, _ := svc.Register("a@example.com", "Sup3rSecret")
	plaintext, key, err := svc.CreateAPIKey(user.ID, "ci", "")
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	gotUser, gotKey, err := svc.VerifyAPIKey(plaintext)
	if err != nil {
		t.Fatalf("Failed to verify key: %v", err)
	}
	if gotUser.ID != user.ID || gotKey.ID != key.ID {
		t.Errorf("Verified key resolved to (%s, %s)", gotUser.ID, gotKey.ID)
	}

	_, _, err = svc.VerifyAPIKey("tlk_" + key.Prefix + "_wrongsecret")
	if errors.CodeOf(err) != errors.CodeInvalidKey {
		t.Errorf("Wrong secret: expected INVALID_KEY, got %v", err)
	}

	_, _, err = svc.VerifyAPIKey("garbage")
	if errors.CodeOf(err) != errors.CodeInvalidKey {
		t.Errorf("Malformed key: expected INVALID_KEY, got %v", err)
	}
}

func TestVerifyAPIKey_RevokedReplay(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	user, _ := svc.Register("a@example.com", "Sup3rSecret")
	plaintext, key, _ := svc.CreateAPIKey(user.ID, "ci", "")

	if err := svc.RevokeAPIKey(user.ID, key.ID); err != nil {
		t.Fatalf("Failed to revoke key: %v", err)
	}

	_, _, err := svc.VerifyAPIKey(plaintext)
	if errors.CodeOf(err) != errors.CodeRevokedKey {
		t.Errorf("Replay of revoked key: expected REVOKED_KEY, got %v", err)
	}
}

func TestRevokeAPIKey_Ownership(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	svc := setupService(t, db)

	owner, _ := svc.Register("a@example.com", "Sup3rSecret")
	other, _ := svc.Register("b@example.com", "Sup3rSecret")
	_, key, _ := svc.CreateAPIKey(owner.ID, "ci", "")

	err := svc.RevokeAPIKey(other.ID, key.ID)
	if errors.CodeOf(err) != errors.CodeForbidden {
		t.Errorf("Cross-user revoke: expected FORBIDDEN, got %v", err)
	}

	err = svc.RevokeAPIKey(owner.ID, "key_missing")
	if errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("Missing key: expected NOT_FOUND, got %v", err)
	}
}

func TestMaskKey(t *testing.T) {
	masked := MaskKey("tlk_abc123_supersecretvalue")
	if strings.Contains(masked, "supersecretvalue") {
		t.Errorf("Masked key %q leaks the secret", masked)
	}
	if !strings.HasPrefix(masked, "tlk_abc123_") {
		t.Errorf("Masked key %q drops the prefix", masked)
	}
	if !strings.HasSuffix(masked, "alue") {
		t.Errorf("Masked key %q should keep the last four characters", masked)
	}

	if MaskKey("garbage") != "tlk_***" {
		t.Errorf("Malformed key should mask fully, got %q", MaskKey("garbage"))
	}
}
