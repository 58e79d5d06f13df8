package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"toollink/internal/platform/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *models.User) error {
	if user.ID == "" {
		user.ID = "usr_" + uuid.NewString()
	}
	now := time.Now().Unix()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, user.ID, user.Email, user.PasswordHash, user.IsActive, user.CreatedAt, user.UpdatedAt)
	return err
}

func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	query := `SELECT id, email, password_hash, is_active, last_login_at, created_at, updated_at FROM users WHERE email = ?`
	return r.scanOne(r.db.QueryRow(query, email))
}

func (r *UserRepository) GetByID(id string) (*models.User, error) {
	query := `SELECT id, email, password_hash, is_active, last_login_at, created_at, updated_at FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	var u models.User
	var lastLogin sql.NullInt64

	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastLogin.Valid {
		u.LastLoginAt = new(int64)
		*u.LastLoginAt = lastLogin.Int64
	}
	return &u, nil
}

func (r *UserRepository) UpdateLastLogin(id string, ts int64) error {
	_, err := r.db.Exec(`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`, ts, ts, id)
	return err
}

func (r *UserRepository) UpdatePassword(id, passwordHash string) error {
	_, err := r.db.Exec(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, passwordHash, time.Now().Unix(), id)
	return err
}

// Deactivate soft-disables a user. Rows are never hard-deleted.
func (r *UserRepository) Deactivate(id string) error {
	_, err := r.db.Exec(`UPDATE users SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}
