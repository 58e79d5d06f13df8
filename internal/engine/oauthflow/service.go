package oauthflow

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"toollink/internal/engine/connections"
	"toollink/internal/engine/secrets"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/auth"
	"toollink/internal/platform/config"
	"toollink/internal/platform/models"
	"toollink/internal/platform/repositories"
)

const (
	stateBytes      = 32
	statePruneGrace = time.Hour
)

// Service drives the three-step external OAuth dance: list providers,
// initiate, callback. The single-use expiring state value is the sole
// CSRF defense across the external redirect boundary, so its checks are
// all fail-closed.
type Service struct {
	providers   *repositories.ProviderRepository
	states      *repositories.OAuthStateRepository
	users       *repositories.UserRepository
	connections *connections.Manager
	sessions    *auth.TokenService
	clients     map[string]config.ClientCredentials

	stateTTL        time.Duration
	exchangeTimeout time.Duration
	now             func() time.Time
}

func NewService(
	providers *repositories.ProviderRepository,
	states *repositories.OAuthStateRepository,
	users *repositories.UserRepository,
	conns *connections.Manager,
	sessions *auth.TokenService,
	oauthCfg config.OAuthConfig,
) *Service {
	return &Service{
		providers:       providers,
		states:          states,
		users:           users,
		connections:     conns,
		sessions:        sessions,
		clients:         oauthCfg.Clients,
		stateTTL:        oauthCfg.StateTTL,
		exchangeTimeout: oauthCfg.ExchangeTimeout,
		now:             time.Now,
	}
}

// ListProviders returns the active catalog. Client secrets never appear
// here; they are not part of the persisted model at all.
func (s *Service) ListProviders() ([]*models.OAuthProvider, error) {
	providers, err := s.providers.ListActive()
	if err != nil {
		return nil, errors.Internal(err)
	}
	return providers, nil
}

// Initiate starts an authorization attempt: a random state value is
// persisted together with the caller context and redirect URI, and the
// provider's authorization URL is composed around it. userID may be
// empty for a pre-login flow.
func (s *Service) Initiate(userID, providerName, redirectURI string) (authURL, state string, err error) {
	if _, err := url.ParseRequestURI(redirectURI); err != nil {
		return "", "", errors.New(errors.CodeInvalidInput, http.StatusBadRequest, "invalid redirect uri")
	}

	provider, creds, err := s.resolveProvider(providerName)
	if err != nil {
		return "", "", err
	}

	// opportunistic pruning, with a grace window behind expiry so a
	// state presented shortly after its deadline still reports expired
	// instead of unknown
	if err := s.states.DeleteExpired(s.now().Add(-statePruneGrace).Unix()); err != nil {
		log.Warn().Err(err).Msg("oauth state pruning failed")
	}

	state = secrets.RandomToken(stateBytes)

	st := &models.OAuthState{
		Value:       state,
		ProviderID:  provider.ID,
		RedirectURI: redirectURI,
		CreatedAt:   s.now().Unix(),
		ExpiresAt:   s.now().Add(s.stateTTL).Unix(),
	}
	if userID != "" {
		st.UserID = &userID
	}
	if err := s.states.Create(st); err != nil {
		return "", "", errors.Internal(err)
	}

	conf := connections.OAuthConfig(provider, creds, redirectURI)
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline), state, nil
}

// CallbackResult is what a completed authorization yields: the upserted
// connection, the resolved platform user and a fresh session token.
type CallbackResult struct {
	User         *models.User
	Account      *models.ConnectedAccount
	SessionToken string
}

// HandleCallback completes an authorization attempt. The state value is
// validated and consumed atomically before anything touches the
// provider; failures past that point cannot resurrect the state, the
// user restarts from Initiate.
func (s *Service) HandleCallback(ctx context.Context, providerName, code, state string) (*CallbackResult, error) {
	provider, creds, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	st, err := s.states.Get(state)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if st == nil || st.ProviderID != provider.ID {
		return nil, errors.New(errors.CodeInvalidState, http.StatusBadRequest, "unrecognized state value")
	}

	consumed, err := s.states.Consume(state, s.now().Unix())
	if err != nil {
		return nil, errors.Internal(err)
	}
	if !consumed {
		return nil, errors.New(errors.CodeStateReused, http.StatusBadRequest, "state value already used")
	}
	if st.ExpiresAt < s.now().Unix() {
		return nil, errors.New(errors.CodeStateExpired, http.StatusBadRequest, "state value expired")
	}

	// the stored redirect URI binds the callback to its initiation; the
	// provider rejects the exchange if it does not match what the user
	// was actually redirected with
	conf := connections.OAuthConfig(provider, creds, st.RedirectURI)

	// in-flight provider calls run to completion even if the caller
	// disconnects: the state is already consumed, abandoning the
	// exchange would strand it
	exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.exchangeTimeout)
	defer cancel()

	tok, err := conf.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, errors.Wrap(errors.CodeProviderExchangeFailed, http.StatusBadGateway, "token exchange with provider failed", err)
	}

	profile, err := fetchProfile(exchangeCtx, conf, provider, tok)
	if err != nil {
		return nil, errors.Wrap(errors.CodeProviderExchangeFailed, http.StatusBadGateway, "fetching provider profile failed", err)
	}

	user, err := s.resolveUser(st, provider, profile)
	if err != nil {
		return nil, err
	}

	acct, err := s.connections.Upsert(user.ID, provider, profile, tok)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Generate(user.ID, user.Email)
	if err != nil {
		return nil, errors.Internal(err)
	}

	return &CallbackResult{User: user, Account: acct, SessionToken: session}, nil
}

func (s *Service) resolveProvider(name string) (*models.OAuthProvider, config.ClientCredentials, error) {
	provider, err := s.providers.GetByName(name)
	if err != nil {
		return nil, config.ClientCredentials{}, errors.Internal(err)
	}
	if provider == nil {
		return nil, config.ClientCredentials{}, errors.New(errors.CodeUnknownProvider, http.StatusBadRequest, "unknown oauth provider")
	}
	if !provider.IsActive {
		return nil, config.ClientCredentials{}, errors.New(errors.CodeProviderInactive, http.StatusBadRequest, "oauth provider is inactive")
	}

	creds, ok := s.clients[provider.Name]
	if !ok || creds.ClientID == "" || creds.ClientSecret == "" {
		// cataloged but not configured with credentials at runtime
		return nil, config.ClientCredentials{}, errors.New(errors.CodeProviderInactive, http.StatusBadRequest, "oauth provider is not configured")
	}
	return provider, creds, nil
}

// resolveUser picks the platform user a completed callback belongs to:
// the initiating user when the flow started logged-in, otherwise the
// user already bound to this external identity, otherwise a match by
// verified email, otherwise a fresh password-less user.
func (s *Service) resolveUser(st *models.OAuthState, provider *models.OAuthProvider, profile connections.Profile) (*models.User, error) {
	if st.UserID != nil {
		user, err := s.users.GetByID(*st.UserID)
		if err != nil {
			return nil, errors.Internal(err)
		}
		if user == nil || !user.IsActive {
			return nil, errors.New(errors.CodeForbidden, http.StatusForbidden, "initiating user is disabled")
		}
		return user, nil
	}

	boundUserID, err := s.connections.FindUserByIdentity(provider.ID, profile.OAuthUserID)
	if err != nil {
		return nil, err
	}
	if boundUserID != "" {
		user, err := s.users.GetByID(boundUserID)
		if err != nil {
			return nil, errors.Internal(err)
		}
		if user != nil && user.IsActive {
			return user, nil
		}
		return nil, errors.New(errors.CodeForbidden, http.StatusForbidden, "bound user is disabled")
	}

	if profile.Email != "" {
		user, err := s.users.GetByEmail(profile.Email)
		if err != nil {
			return nil, errors.Internal(err)
		}
		if user != nil {
			if !user.IsActive {
				return nil, errors.New(errors.CodeForbidden, http.StatusForbidden, "user is disabled")
			}
			return user, nil
		}
	}

	email := profile.Email
	if email == "" {
		email = profile.OAuthUserID + "@" + provider.Name + ".oauth.invalid"
	}
	user := &models.User{Email: email, IsActive: true}
	if err := s.users.Create(user); err != nil {
		return nil, errors.Internal(err)
	}
	return user, nil
}
