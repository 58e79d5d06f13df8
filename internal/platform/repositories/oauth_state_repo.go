package repositories

import (
	"database/sql"

	"toollink/internal/platform/models"
)

type OAuthStateRepository struct {
	db *sql.DB
}

func NewOAuthStateRepository(db *sql.DB) *OAuthStateRepository {
	return &OAuthStateRepository{db: db}
}

func (r *OAuthStateRepository) Create(st *models.OAuthState) error {
	query := `
		INSERT INTO oauth_states (value, provider_id, user_id, redirect_uri, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, st.Value, st.ProviderID, st.UserID, st.RedirectURI, st.CreatedAt, st.ExpiresAt)
	return err
}

func (r *OAuthStateRepository) Get(value string) (*models.OAuthState, error) {
	query := `SELECT value, provider_id, user_id, redirect_uri, created_at, expires_at, consumed_at FROM oauth_states WHERE value = ?`
	row := r.db.QueryRow(query, value)

	var st models.OAuthState
	var userID sql.NullString
	var consumed sql.NullInt64

	err := row.Scan(&st.Value, &st.ProviderID, &userID, &st.RedirectURI, &st.CreatedAt, &st.ExpiresAt, &consumed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		st.UserID = new(string)
		*st.UserID = userID.String
	}
	if consumed.Valid {
		st.ConsumedAt = new(int64)
		*st.ConsumedAt = consumed.Int64
	}
	return &st, nil
}

// Consume marks a state used with a single conditional update. Exactly
// one caller can win; a second callback racing on the same value sees
// zero rows affected.
func (r *OAuthStateRepository) Consume(value string, now int64) (bool, error) {
	res, err := r.db.Exec(`UPDATE oauth_states SET consumed_at = ? WHERE value = ? AND consumed_at IS NULL`, now, value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteExpired prunes states whose expiry lies before the cutoff.
// Called opportunistically from initiate rather than by a background
// sweeper; the caller backdates the cutoff to keep recently expired
// states answerable.
func (r *OAuthStateRepository) DeleteExpired(cutoff int64) error {
	_, err := r.db.Exec(`DELETE FROM oauth_states WHERE expires_at < ?`, cutoff)
	return err
}
