package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"toollink/internal/engine/ratelimit"
	"toollink/internal/engine/secrets"
	"toollink/internal/pkg/errors"
	"toollink/internal/pkg/validator"
	"toollink/internal/platform/config"
	"toollink/internal/platform/models"
	"toollink/internal/platform/repositories"
)

const (
	maxActiveKeys = 5

	keyScheme    = "tlk"
	prefixLength = 10
	secretBytes  = 32

	prefixChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Service owns user registration, password verification and the api-key
// lifecycle. Login attempts are rate-limited per email.
type Service struct {
	users   *repositories.UserRepository
	keys    *repositories.APIKeyRepository
	codec   *secrets.Codec
	limiter *ratelimit.Limiter

	loginAttempts int
	loginWindow   time.Duration

	// verified against when the email is unknown, so lookups and misses
	// take comparable time
	decoyHash string
}

func NewService(users *repositories.UserRepository, keys *repositories.APIKeyRepository, codec *secrets.Codec, limiter *ratelimit.Limiter, cfg config.RateLimitConfig) *Service {
	decoy, err := codec.HashPassword(secrets.RandomToken(16))
	if err != nil {
		log.Warn().Err(err).Msg("failed to prepare decoy hash")
	}

	return &Service{
		users:         users,
		keys:          keys,
		codec:         codec,
		limiter:       limiter,
		loginAttempts: cfg.LoginAttempts,
		loginWindow:   cfg.LoginWindow,
		decoyHash:     decoy,
	}
}

func (s *Service) Register(email, password string) (*models.User, error) {
	if err := validator.CheckEmail(email); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, http.StatusBadRequest, err.Error())
	}
	if err := validator.CheckPassword(password); err != nil {
		return nil, errors.New(errors.CodeWeakPassword, http.StatusBadRequest, err.Error())
	}

	existing, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if existing != nil {
		return nil, errors.New(errors.CodeDuplicateEmail, http.StatusConflict, "email already registered")
	}

	hash, err := s.codec.HashPassword(password)
	if err != nil {
		return nil, errors.Internal(err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(user); err != nil {
		return nil, errors.Internal(err)
	}
	return user, nil
}

// VerifyPassword authenticates an email/password pair. Unknown email and
// wrong password produce the same failure; only the rate limiter is
// allowed to say anything more specific.
func (s *Service) VerifyPassword(email, password string) (*models.User, error) {
	decision := s.limiter.Admit("login:"+email, s.loginAttempts, s.loginWindow)
	if !decision.Allowed {
		return nil, &errors.Error{
			Code:       errors.CodeRateLimited,
			Message:    "too many login attempts",
			HTTPStatus: http.StatusTooManyRequests,
			RetryAfter: int(decision.RetryAfter.Seconds()),
		}
	}

	invalid := errors.New(errors.CodeInvalidCredentials, http.StatusUnauthorized, "invalid credentials")

	user, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if user == nil {
		s.codec.VerifyPassword(password, s.decoyHash)
		return nil, invalid
	}
	if !user.IsActive || user.PasswordHash == "" {
		s.codec.VerifyPassword(password, s.decoyHash)
		return nil, invalid
	}
	if !s.codec.VerifyPassword(password, user.PasswordHash) {
		return nil, invalid
	}

	s.limiter.Reset("login:" + email)
	s.users.UpdateLastLogin(user.ID, time.Now().Unix())
	return user, nil
}

// CreateAPIKey mints a key of the form tlk_<prefix>_<secret>. Only the
// HMAC digest of the secret is stored; the plaintext is returned exactly
// once and never logged.
func (s *Service) CreateAPIKey(userID, label, prefix string) (string, *models.APIKey, error) {
	if prefix == "" {
		prefix = randPrefix(prefixLength)
	} else if !validPrefix(prefix) {
		return "", nil, errors.New(errors.CodeInvalidInput, http.StatusBadRequest, "prefix must be 4-16 alphanumeric characters")
	}

	secret := secrets.RandomToken(secretBytes)
	plaintext := keyScheme + "_" + prefix + "_" + secret

	key := &models.APIKey{
		UserID:   userID,
		Label:    label,
		Prefix:   prefix,
		KeyHash:  s.codec.HashAPIKey(secret),
		IsActive: true,
	}
	inserted, err := s.keys.CreateCapped(key, maxActiveKeys)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return "", nil, errors.New(errors.CodeConflict, http.StatusConflict, "prefix already in use")
		}
		return "", nil, errors.Internal(err)
	}
	if !inserted {
		return "", nil, errors.New(errors.CodeKeyLimitExceeded, http.StatusConflict,
			fmt.Sprintf("at most %d active api keys per user", maxActiveKeys))
	}

	return plaintext, key, nil
}

// VerifyAPIKey resolves a presented key to its owner. The prefix drives
// the lookup; the secret only ever meets the stored digest.
func (s *Service) VerifyAPIKey(presented string) (*models.User, *models.APIKey, error) {
	invalid := errors.New(errors.CodeInvalidKey, http.StatusUnauthorized, "invalid api key")

	parts := strings.SplitN(presented, "_", 3)
	if len(parts) != 3 || parts[0] != keyScheme || parts[1] == "" || parts[2] == "" {
		return nil, nil, invalid
	}
	prefix, secret := parts[1], parts[2]

	key, err := s.keys.GetByPrefix(prefix)
	if err != nil {
		return nil, nil, errors.Internal(err)
	}
	if key == nil {
		return nil, nil, invalid
	}
	if !s.codec.VerifyAPIKey(secret, key.KeyHash) {
		return nil, nil, invalid
	}
	if !key.IsActive {
		return nil, nil, errors.New(errors.CodeRevokedKey, http.StatusUnauthorized, "api key revoked")
	}

	user, err := s.users.GetByID(key.UserID)
	if err != nil {
		return nil, nil, errors.Internal(err)
	}
	if user == nil || !user.IsActive {
		return nil, nil, invalid
	}

	s.keys.UpdateLastUsed(key.ID)
	return user, key, nil
}

func (s *Service) RevokeAPIKey(userID, keyID string) error {
	key, err := s.keys.GetByID(keyID)
	if err != nil {
		return errors.Internal(err)
	}
	if key == nil {
		return errors.New(errors.CodeNotFound, http.StatusNotFound, "api key not found")
	}
	if key.UserID != userID {
		return errors.New(errors.CodeForbidden, http.StatusForbidden, "api key belongs to another user")
	}
	if err := s.keys.Revoke(keyID); err != nil {
		return errors.Internal(err)
	}
	return nil
}

func (s *Service) ListAPIKeys(userID string) ([]*models.APIKey, error) {
	keys, err := s.keys.ListByUser(userID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return keys, nil
}

// MaskKey renders a key for display without revealing the secret.
func MaskKey(full string) string {
	parts := strings.SplitN(full, "_", 3)
	if len(parts) != 3 || len(parts[2]) < 4 {
		return keyScheme + "_***"
	}
	return fmt.Sprintf("%s_%s_%s...%s", keyScheme, parts[1], strings.Repeat("*", 8), parts[2][len(parts[2])-4:])
}

func randPrefix(n int) string {
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(prefixChars))))
		if err != nil {
			panic(err)
		}
		b[i] = prefixChars[idx.Int64()]
	}
	return string(b)
}

func validPrefix(prefix string) bool {
	if len(prefix) < 4 || len(prefix) > 16 {
		return false
	}
	for _, c := range prefix {
		if !strings.ContainsRune(prefixChars, c) {
			return false
		}
	}
	return true
}
