package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"toollink/internal/platform/models"
)

type ProviderRepository struct {
	db *sql.DB
}

func NewProviderRepository(db *sql.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

const providerColumns = `id, name, display_name, auth_url, token_url, user_info_url, scopes, is_active, created_at`

// Create inserts a catalog entry. Idempotent on name so seeding can run
// repeatedly.
func (r *ProviderRepository) Create(p *models.OAuthProvider) error {
	if p.ID == "" {
		p.ID = "prov_" + uuid.NewString()
	}
	p.CreatedAt = time.Now().Unix()

	query := `
		INSERT INTO oauth_providers (id, name, display_name, auth_url, token_url, user_info_url, scopes, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			auth_url = excluded.auth_url,
			token_url = excluded.token_url,
			user_info_url = excluded.user_info_url,
			scopes = excluded.scopes,
			is_active = excluded.is_active
	`
	_, err := r.db.Exec(query, p.ID, p.Name, p.DisplayName, p.AuthURL, p.TokenURL, p.UserInfoURL, p.Scopes, p.IsActive, p.CreatedAt)
	return err
}

func (r *ProviderRepository) GetByName(name string) (*models.OAuthProvider, error) {
	row := r.db.QueryRow(`SELECT `+providerColumns+` FROM oauth_providers WHERE name = ?`, name)
	return r.scanOne(row)
}

func (r *ProviderRepository) GetByID(id string) (*models.OAuthProvider, error) {
	row := r.db.QueryRow(`SELECT `+providerColumns+` FROM oauth_providers WHERE id = ?`, id)
	return r.scanOne(row)
}

func (r *ProviderRepository) scanOne(row *sql.Row) (*models.OAuthProvider, error) {
	var p models.OAuthProvider
	err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.AuthURL, &p.TokenURL, &p.UserInfoURL, &p.Scopes, &p.IsActive, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProviderRepository) ListActive() ([]*models.OAuthProvider, error) {
	rows, err := r.db.Query(`SELECT ` + providerColumns + ` FROM oauth_providers WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []*models.OAuthProvider
	for rows.Next() {
		var p models.OAuthProvider
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.AuthURL, &p.TokenURL, &p.UserInfoURL, &p.Scopes, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		providers = append(providers, &p)
	}
	return providers, rows.Err()
}
