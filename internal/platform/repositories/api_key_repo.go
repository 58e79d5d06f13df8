package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"toollink/internal/platform/models"
)

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// CreateCapped inserts the key only while the user holds fewer than
// maxActive active keys. The count and the insert are one statement,
// so concurrent creates cannot both slip under the cap. Returns false
// when the cap blocked the insert.
func (r *APIKeyRepository) CreateCapped(key *models.APIKey, maxActive int) (bool, error) {
	if key.ID == "" {
		key.ID = "key_" + uuid.NewString()
	}
	key.CreatedAt = time.Now().Unix()

	query := `
		INSERT INTO api_keys (id, user_id, label, prefix, key_hash, is_active, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE (SELECT COUNT(*) FROM api_keys WHERE user_id = ? AND is_active = 1) < ?
	`
	res, err := r.db.Exec(query,
		key.ID, key.UserID, key.Label, key.Prefix, key.KeyHash, key.IsActive, key.CreatedAt,
		key.UserID, maxActive)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// GetByPrefix looks up a key by its non-secret display prefix. The hash
// comparison happens in the caller; this lookup alone proves nothing.
func (r *APIKeyRepository) GetByPrefix(prefix string) (*models.APIKey, error) {
	query := `SELECT id, user_id, label, prefix, key_hash, is_active, last_used_at, created_at, revoked_at FROM api_keys WHERE prefix = ?`
	return r.scanOne(r.db.QueryRow(query, prefix))
}

func (r *APIKeyRepository) GetByID(id string) (*models.APIKey, error) {
	query := `SELECT id, user_id, label, prefix, key_hash, is_active, last_used_at, created_at, revoked_at FROM api_keys WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

func (r *APIKeyRepository) scanOne(row *sql.Row) (*models.APIKey, error) {
	var k models.APIKey
	var lastUsed, revoked sql.NullInt64

	err := row.Scan(&k.ID, &k.UserID, &k.Label, &k.Prefix, &k.KeyHash, &k.IsActive, &lastUsed, &k.CreatedAt, &revoked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		k.LastUsedAt = new(int64)
		*k.LastUsedAt = lastUsed.Int64
	}
	if revoked.Valid {
		k.RevokedAt = new(int64)
		*k.RevokedAt = revoked.Int64
	}
	return &k, nil
}

func (r *APIKeyRepository) ListByUser(userID string) ([]*models.APIKey, error) {
	query := `SELECT id, user_id, label, prefix, key_hash, is_active, last_used_at, created_at, revoked_at FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		var lastUsed, revoked sql.NullInt64

		if err := rows.Scan(&k.ID, &k.UserID, &k.Label, &k.Prefix, &k.KeyHash, &k.IsActive, &lastUsed, &k.CreatedAt, &revoked); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			k.LastUsedAt = new(int64)
			*k.LastUsedAt = lastUsed.Int64
		}
		if revoked.Valid {
			k.RevokedAt = new(int64)
			*k.RevokedAt = revoked.Int64
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) Revoke(id string) error {
	_, err := r.db.Exec(`UPDATE api_keys SET is_active = 0, revoked_at = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}

func (r *APIKeyRepository) UpdateLastUsed(id string) error {
	_, err := r.db.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}
