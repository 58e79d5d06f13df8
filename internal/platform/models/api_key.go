package models

type APIKey struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Label      string `json:"label"`
	Prefix     string `json:"prefix"`
	KeyHash    string `json:"-"`
	IsActive   bool   `json:"is_active"`
	LastUsedAt *int64 `json:"last_used_at,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	RevokedAt  *int64 `json:"revoked_at,omitempty"`
}
