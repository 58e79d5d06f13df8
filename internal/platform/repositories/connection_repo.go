package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"toollink/internal/platform/models"
)

type ConnectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const accountColumns = `id, user_id, provider_id, oauth_user_id, email, display_name, avatar_url, access_token_enc, refresh_token_enc, token_expires_at, is_primary, created_at, updated_at`

// Upsert inserts or updates the row for (provider_id, oauth_user_id).
// The unique constraint makes the insert race-safe: if two callbacks
// land at once, one insert degrades to the conflict update. The first
// connection a user makes to a provider is elected primary inside the
// same transaction. When an identity rebinds to a different user the
// flag is recomputed for the new owner and the old owner's oldest
// remaining connection inherits primary, keeping at most one primary
// per (user, provider) on both sides.
func (r *ConnectionRepository) Upsert(acct *models.ConnectedAccount) (*models.ConnectedAccount, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	var (
		prevUserID  string
		prevPrimary bool
	)
	err = tx.QueryRow(
		`SELECT user_id, is_primary FROM user_oauth_accounts WHERE provider_id = ? AND oauth_user_id = ?`,
		acct.ProviderID, acct.OAuthUserID,
	).Scan(&prevUserID, &prevPrimary)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	found := err == nil
	rebinding := found && prevUserID != acct.UserID

	isPrimary := false
	if !found || rebinding {
		var others int
		err = tx.QueryRow(
			`SELECT COUNT(*) FROM user_oauth_accounts WHERE user_id = ? AND provider_id = ?`,
			acct.UserID, acct.ProviderID,
		).Scan(&others)
		if err != nil {
			return nil, err
		}
		isPrimary = others == 0
	}

	if acct.ID == "" {
		acct.ID = "conn_" + uuid.NewString()
	}

	query := `
		INSERT INTO user_oauth_accounts
			(id, user_id, provider_id, oauth_user_id, email, display_name, avatar_url,
			 access_token_enc, refresh_token_enc, token_expires_at, is_primary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_id, oauth_user_id) DO UPDATE SET
			is_primary = CASE WHEN user_id != excluded.user_id THEN excluded.is_primary ELSE is_primary END,
			user_id = excluded.user_id,
			email = excluded.email,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			access_token_enc = excluded.access_token_enc,
			refresh_token_enc = CASE WHEN excluded.refresh_token_enc != '' THEN excluded.refresh_token_enc ELSE refresh_token_enc END,
			token_expires_at = excluded.token_expires_at,
			updated_at = excluded.updated_at
	`
	_, err = tx.Exec(query,
		acct.ID, acct.UserID, acct.ProviderID, acct.OAuthUserID, acct.Email, acct.DisplayName, acct.AvatarURL,
		acct.AccessTokenEnc, acct.RefreshTokenEnc, acct.TokenExpiresAt, isPrimary, now, now)
	if err != nil {
		return nil, err
	}

	if rebinding && prevPrimary {
		_, err = tx.Exec(`
			UPDATE user_oauth_accounts SET is_primary = 1
			WHERE id = (
				SELECT id FROM user_oauth_accounts
				WHERE user_id = ? AND provider_id = ?
				ORDER BY created_at LIMIT 1
			)`, prevUserID, acct.ProviderID)
		if err != nil {
			return nil, err
		}
	}

	row := tx.QueryRow(
		`SELECT `+accountColumns+` FROM user_oauth_accounts WHERE provider_id = ? AND oauth_user_id = ?`,
		acct.ProviderID, acct.OAuthUserID,
	)
	result, err := scanAccount(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.ConnectedAccount, error) {
	var a models.ConnectedAccount
	err := row.Scan(&a.ID, &a.UserID, &a.ProviderID, &a.OAuthUserID, &a.Email, &a.DisplayName, &a.AvatarURL,
		&a.AccessTokenEnc, &a.RefreshTokenEnc, &a.TokenExpiresAt, &a.IsPrimary, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ConnectionRepository) GetByID(id string) (*models.ConnectedAccount, error) {
	row := r.db.QueryRow(`SELECT `+accountColumns+` FROM user_oauth_accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// FindByProviderIdentity resolves the account bound to one external
// identity, used to recognize returning OAuth logins.
func (r *ConnectionRepository) FindByProviderIdentity(providerID, oauthUserID string) (*models.ConnectedAccount, error) {
	row := r.db.QueryRow(
		`SELECT `+accountColumns+` FROM user_oauth_accounts WHERE provider_id = ? AND oauth_user_id = ?`,
		providerID, oauthUserID,
	)
	return scanAccount(row)
}

// ListByUser returns a user's connections, optionally filtered by
// provider. Served by the (user_id, provider_id) index.
func (r *ConnectionRepository) ListByUser(userID, providerID string) ([]*models.ConnectedAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM user_oauth_accounts WHERE user_id = ?`
	args := []any{userID}
	if providerID != "" {
		query += ` AND provider_id = ?`
		args = append(args, providerID)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.ConnectedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *ConnectionRepository) UpdateTokens(id, accessTokenEnc, refreshTokenEnc string, expiresAt int64) error {
	_, err := r.db.Exec(
		`UPDATE user_oauth_accounts SET access_token_enc = ?, refresh_token_enc = ?, token_expires_at = ?, updated_at = ? WHERE id = ?`,
		accessTokenEnc, refreshTokenEnc, expiresAt, time.Now().Unix(), id)
	return err
}

// Delete removes a connection. If it was primary, the oldest remaining
// connection for that provider inherits the flag.
func (r *ConnectionRepository) Delete(acct *models.ConnectedAccount) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM user_oauth_accounts WHERE id = ?`, acct.ID); err != nil {
		return err
	}

	if acct.IsPrimary {
		_, err = tx.Exec(`
			UPDATE user_oauth_accounts SET is_primary = 1
			WHERE id = (
				SELECT id FROM user_oauth_accounts
				WHERE user_id = ? AND provider_id = ?
				ORDER BY created_at LIMIT 1
			)`, acct.UserID, acct.ProviderID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// PromotePrimary makes one connection the provider default for a user.
func (r *ConnectionRepository) PromotePrimary(userID, providerID, id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE user_oauth_accounts SET is_primary = 0 WHERE user_id = ? AND provider_id = ?`, userID, providerID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE user_oauth_accounts SET is_primary = 1, updated_at = ? WHERE id = ?`, time.Now().Unix(), id); err != nil {
		return err
	}

	return tx.Commit()
}
