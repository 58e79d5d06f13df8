package secrets

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"toollink/internal/platform/config"
)

// argon2id parameters for password and api-key secret hashing
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16

	minKeyMaterial = 16
)

// ErrCrypto indicates missing or misconfigured key material. It is fatal
// at startup; New is the only place it can surface.
var ErrCrypto = errors.New("crypto: missing or misconfigured key material")

// Codec performs all secret handling: one-way hashing for passwords and
// api keys, and keyed sealing for OAuth tokens at rest.
type Codec struct {
	aead         cipher.AEAD
	apiKeySecret []byte
}

func New(cfg config.CryptoConfig) (*Codec, error) {
	if len(cfg.TokenSealKey) < minKeyMaterial {
		return nil, fmt.Errorf("%w: token_seal_key too short", ErrCrypto)
	}
	if len(cfg.APIKeySecret) < minKeyMaterial {
		return nil, fmt.Errorf("%w: api_key_secret too short", ErrCrypto)
	}

	key := sha256.Sum256([]byte(cfg.TokenSealKey))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	return &Codec{
		aead:         aead,
		apiKeySecret: []byte(cfg.APIKeySecret),
	}, nil
}

// HashPassword returns the argon2id hash in PHC string format.
func (c *Codec) HashPassword(plain string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	digest := argon2.IDKey([]byte(plain), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

// VerifyPassword re-derives the hash with the stored parameters and
// compares in constant time.
func (c *Codec) VerifyPassword(plain, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	digest := argon2.IDKey([]byte(plain), salt, time, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(digest, expected) == 1
}

// HashAPIKey computes the HMAC-SHA256 digest of an api-key secret. The
// digest is deterministic so it can be used for lookup-free comparison.
func (c *Codec) HashAPIKey(secret string) string {
	mac := hmac.New(sha256.New, c.apiKeySecret)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyAPIKey compares a presented secret against a stored digest in
// constant time.
func (c *Codec) VerifyAPIKey(secret, storedDigest string) bool {
	computed := c.HashAPIKey(secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedDigest)) == 1
}

// EncryptToken seals a provider token for storage: random nonce prepended
// to the ciphertext, base64url encoded.
func (c *Codec) EncryptToken(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *Codec) DecryptToken(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// RandomToken returns n bytes of cryptographically random material,
// base64url encoded. Used for OAuth state values and api-key secrets.
func RandomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// rand.Read never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
