package models

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	IsActive     bool   `json:"is_active"`
	LastLoginAt  *int64 `json:"last_login_at,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// OAuthProvider is a catalog entry. Client credentials are deliberately
// absent: they live only in runtime configuration and are joined in by
// the flow layer at use time.
type OAuthProvider struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	AuthURL     string `json:"auth_url"`
	TokenURL    string `json:"token_url"`
	UserInfoURL string `json:"user_info_url"`
	Scopes      string `json:"scopes"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   int64  `json:"created_at"`
}

// OAuthState correlates an initiated authorization request with its
// callback. Single use: consumed_at is set exactly once.
type OAuthState struct {
	Value       string
	ProviderID  string
	UserID      *string // nil when the flow starts pre-login
	RedirectURI string
	CreatedAt   int64
	ExpiresAt   int64
	ConsumedAt  *int64
}

// ConnectedAccount binds a platform user to one external provider
// identity. (provider_id, oauth_user_id) is unique across all users.
type ConnectedAccount struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	ProviderID      string `json:"provider_id"`
	OAuthUserID     string `json:"oauth_user_id"`
	Email           string `json:"email"`
	DisplayName     string `json:"display_name"`
	AvatarURL       string `json:"avatar_url,omitempty"`
	AccessTokenEnc  string `json:"-"`
	RefreshTokenEnc string `json:"-"`
	TokenExpiresAt  int64  `json:"token_expires_at"`
	IsPrimary       bool   `json:"is_primary"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}
