package connections

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"toollink/internal/engine/secrets"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/config"
	"toollink/internal/platform/models"
	"toollink/internal/platform/repositories"
)

// Profile is the provider-side identity captured at callback time.
type Profile struct {
	OAuthUserID string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Manager owns the lifecycle of connected third-party accounts: creation
// from OAuth callbacks, token refresh, listing and revocation. Tokens are
// sealed before they touch the store and unsealed only for a single
// execution context.
type Manager struct {
	repo      *repositories.ConnectionRepository
	providers *repositories.ProviderRepository
	codec     *secrets.Codec
	clients   map[string]config.ClientCredentials

	refreshTimeout time.Duration
	now            func() time.Time
}

func NewManager(repo *repositories.ConnectionRepository, providers *repositories.ProviderRepository, codec *secrets.Codec, oauthCfg config.OAuthConfig) *Manager {
	return &Manager{
		repo:           repo,
		providers:      providers,
		codec:          codec,
		clients:        oauthCfg.Clients,
		refreshTimeout: oauthCfg.ExchangeTimeout,
		now:            time.Now,
	}
}

// OAuthConfig assembles the oauth2 client config for a catalog entry,
// joining in the runtime-only client credentials.
func OAuthConfig(p *models.OAuthProvider, creds config.ClientCredentials, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       strings.Fields(p.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// Upsert persists a callback result. An existing (provider, provider
// user id) row is updated in place; otherwise a new connection is
// inserted, primary if it is the user's first for this provider.
func (m *Manager) Upsert(userID string, provider *models.OAuthProvider, profile Profile, tok *oauth2.Token) (*models.ConnectedAccount, error) {
	accessEnc, err := m.codec.EncryptToken(tok.AccessToken)
	if err != nil {
		return nil, errors.Internal(err)
	}
	refreshEnc, err := m.codec.EncryptToken(tok.RefreshToken)
	if err != nil {
		return nil, errors.Internal(err)
	}

	var expiresAt int64
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry.Unix()
	}

	acct, err := m.repo.Upsert(&models.ConnectedAccount{
		UserID:          userID,
		ProviderID:      provider.ID,
		OAuthUserID:     profile.OAuthUserID,
		Email:           profile.Email,
		DisplayName:     profile.DisplayName,
		AvatarURL:       profile.AvatarURL,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		TokenExpiresAt:  expiresAt,
	})
	if err != nil {
		return nil, errors.Internal(err)
	}
	return acct, nil
}

// RefreshIfExpired exchanges the refresh token for new credentials when
// the stored access token has expired. A provider rejection means the
// grant is gone and the user must re-authorize.
func (m *Manager) RefreshIfExpired(ctx context.Context, acct *models.ConnectedAccount) (*models.ConnectedAccount, error) {
	if acct.TokenExpiresAt == 0 || m.now().Unix() < acct.TokenExpiresAt {
		return acct, nil
	}

	refreshToken, err := m.codec.DecryptToken(acct.RefreshTokenEnc)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if refreshToken == "" {
		return nil, errors.New(errors.CodeRefreshFailed, http.StatusUnauthorized, "no refresh token; re-authorization required")
	}

	provider, err := m.providers.GetByID(acct.ProviderID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if provider == nil {
		return nil, errors.New(errors.CodeUnknownProvider, http.StatusBadRequest, "provider no longer configured")
	}

	conf := OAuthConfig(provider, m.clients[provider.Name], "")

	// let an in-flight refresh finish even if the caller went away, so a
	// rotated token is never dropped on the floor
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
	defer cancel()

	tok, err := conf.TokenSource(refreshCtx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, errors.Wrap(errors.CodeRefreshFailed, http.StatusUnauthorized, "provider rejected token refresh", err)
	}

	accessEnc, err := m.codec.EncryptToken(tok.AccessToken)
	if err != nil {
		return nil, errors.Internal(err)
	}
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	refreshEnc, err := m.codec.EncryptToken(newRefresh)
	if err != nil {
		return nil, errors.Internal(err)
	}

	var expiresAt int64
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry.Unix()
	}
	if err := m.repo.UpdateTokens(acct.ID, accessEnc, refreshEnc, expiresAt); err != nil {
		return nil, errors.Internal(err)
	}

	updated := *acct
	updated.AccessTokenEnc = accessEnc
	updated.RefreshTokenEnc = refreshEnc
	updated.TokenExpiresAt = expiresAt
	return &updated, nil
}

// List returns the caller's connections, optionally narrowed to one
// provider by name.
func (m *Manager) List(userID, providerName string) ([]*models.ConnectedAccount, error) {
	providerID := ""
	if providerName != "" {
		provider, err := m.providers.GetByName(providerName)
		if err != nil {
			return nil, errors.Internal(err)
		}
		if provider == nil {
			return nil, errors.New(errors.CodeUnknownProvider, http.StatusBadRequest, "unknown provider")
		}
		providerID = provider.ID
	}

	accounts, err := m.repo.ListByUser(userID, providerID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return accounts, nil
}

func (m *Manager) Get(id string) (*models.ConnectedAccount, error) {
	acct, err := m.repo.GetByID(id)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return acct, nil
}

func (m *Manager) Revoke(userID, id string) error {
	acct, err := m.repo.GetByID(id)
	if err != nil {
		return errors.Internal(err)
	}
	if acct == nil {
		return errors.New(errors.CodeNotFound, http.StatusNotFound, "connection not found")
	}
	if acct.UserID != userID {
		return errors.New(errors.CodeForbidden, http.StatusForbidden, "connection belongs to another user")
	}
	if err := m.repo.Delete(acct); err != nil {
		return errors.Internal(err)
	}
	return nil
}

func (m *Manager) PromotePrimary(userID, id string) error {
	acct, err := m.repo.GetByID(id)
	if err != nil {
		return errors.Internal(err)
	}
	if acct == nil {
		return errors.New(errors.CodeNotFound, http.StatusNotFound, "connection not found")
	}
	if acct.UserID != userID {
		return errors.New(errors.CodeForbidden, http.StatusForbidden, "connection belongs to another user")
	}
	if err := m.repo.PromotePrimary(userID, acct.ProviderID, id); err != nil {
		return errors.Internal(err)
	}
	return nil
}

// AccessToken unseals the stored access token for a single execution.
// Callers must not persist the result.
func (m *Manager) AccessToken(acct *models.ConnectedAccount) (string, error) {
	token, err := m.codec.DecryptToken(acct.AccessTokenEnc)
	if err != nil {
		return "", errors.Internal(err)
	}
	return token, nil
}

// FindUserByIdentity maps an external identity back to the platform user
// bound to it, if any. Used for OAuth-initiated logins.
func (m *Manager) FindUserByIdentity(providerID, oauthUserID string) (string, error) {
	acct, err := m.repo.FindByProviderIdentity(providerID, oauthUserID)
	if err != nil {
		return "", errors.Internal(err)
	}
	if acct == nil {
		return "", nil
	}
	return acct.UserID, nil
}
