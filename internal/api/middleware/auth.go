package middleware

import (
	"context"
	"net/http"
	"strings"

	apiContext "toollink/internal/api/context"
	"toollink/internal/engine/credentials"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/auth"
)

// Identity is the authenticated caller, resolved from either a session
// token or an api key. Every downstream operation takes it explicitly;
// nothing reads it ambiently.
type Identity struct {
	UserID string
	Email  string
	// APIKeyID is set when the caller authenticated with an api key
	APIKeyID string
}

type AuthMiddleware struct {
	tokens *auth.TokenService
	creds  *credentials.Service
}

func NewAuthMiddleware(tokens *auth.TokenService, creds *credentials.Service) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, creds: creds}
}

// Handle admits callers carrying either "Authorization: Bearer <jwt>" or
// "X-API-Key: tlk_...".
func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			user, key, err := m.creds.VerifyAPIKey(apiKey)
			if err != nil {
				errors.WriteError(w, TraceID(r.Context()), err)
				return
			}
			m.serve(next, w, r, &Identity{UserID: user.ID, Email: user.Email, APIKeyID: key.ID})
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			errors.WriteError(w, TraceID(r.Context()),
				errors.New(errors.CodeInvalidCredentials, http.StatusUnauthorized, "missing credentials"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			errors.WriteError(w, TraceID(r.Context()),
				errors.New(errors.CodeInvalidCredentials, http.StatusUnauthorized, "invalid authorization header format"))
			return
		}

		claims, err := m.tokens.Validate(parts[1])
		if err != nil {
			errors.WriteError(w, TraceID(r.Context()), err)
			return
		}

		m.serve(next, w, r, &Identity{UserID: claims.UserID, Email: claims.Email})
	}
}

// HandleOptional resolves the caller when credentials are present but
// lets anonymous requests through, for flows that work both ways.
func (m *AuthMiddleware) HandleOptional(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" && r.Header.Get("X-API-Key") == "" {
			next(w, r)
			return
		}
		m.Handle(next)(w, r)
	}
}

func (m *AuthMiddleware) serve(next http.HandlerFunc, w http.ResponseWriter, r *http.Request, id *Identity) {
	ctx := context.WithValue(r.Context(), apiContext.Identity, id)
	next(w, r.WithContext(ctx))
}

// CallerIdentity extracts the identity placed by Handle.
func CallerIdentity(ctx context.Context) *Identity {
	if id, ok := ctx.Value(apiContext.Identity).(*Identity); ok {
		return id
	}
	return nil
}
