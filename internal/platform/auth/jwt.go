package auth

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/config"
)

type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies short-lived signed session tokens.
// Tokens are stateless: there is no server-side session store and no
// revocation list, so logout is client-side discard.
type TokenService struct {
	config config.JWTConfig
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{config: cfg}
}

func (s *TokenService) Generate(userID, email string) (string, error) {
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.config.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "toollink",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

// Validate verifies the signature and expiry and returns the claims.
// Failure kinds are distinguished so the transport layer can report
// expired sessions differently from forged ones.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, stderrors.New("unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	})

	if err != nil {
		switch {
		case stderrors.Is(err, jwt.ErrTokenExpired):
			return nil, errors.Wrap(errors.CodeTokenExpired, http.StatusUnauthorized, "session token expired", err)
		case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errors.Wrap(errors.CodeBadSignature, http.StatusUnauthorized, "session token signature invalid", err)
		default:
			return nil, errors.Wrap(errors.CodeTokenMalformed, http.StatusUnauthorized, "session token malformed", err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New(errors.CodeTokenMalformed, http.StatusUnauthorized, "session token malformed")
	}
	return claims, nil
}
