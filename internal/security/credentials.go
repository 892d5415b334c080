// Package security issues and verifies the two kinds of secrets the
// service hands out: signed bearer tokens for owners and clients, and
// sealed QR payloads bound to a machine.  All key material is passed in
// at construction; nothing here reads the environment.
package security

import (
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/chacha20poly1305"
)

// DefaultBearerTTL is the lifetime of a bearer token when Options.BearerTTL is zero.
const DefaultBearerTTL = 24 * time.Hour

// ErrConfiguration is returned by NewCredentials when a secret is absent
// or malformed.  Callers must refuse to serve.
var ErrConfiguration = errors.New("security: invalid configuration")

// Options configures a Credentials instance.
type Options struct {
	SigningSecret string           // HMAC secret for bearer tokens
	EncryptionKey string           // base64 (std or URL alphabet) 32-byte key for QR payloads
	BearerTTL     time.Duration    // defaults to DefaultBearerTTL
	BcryptCost    int              // defaults to bcrypt.DefaultCost
	Now           func() time.Time // defaults to time.Now
}

// Credentials hashes passwords, signs bearer tokens and seals QR
// payloads.  It is safe for concurrent use; all fields are read-only
// after construction.
type Credentials struct {
	signingKey []byte
	aead       cipher.AEAD
	bearerTTL  time.Duration
	bcryptCost int
	now        func() time.Time
}

// NewCredentials validates the secrets and returns a ready Credentials.
func NewCredentials(opts Options) (*Credentials, error) {
	if opts.SigningSecret == "" {
		return nil, fmt.Errorf("%w: signing secret is empty", ErrConfiguration)
	}
	key, err := decodeKey(opts.EncryptionKey)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	c := &Credentials{
		signingKey: []byte(opts.SigningSecret),
		aead:       aead,
		bearerTTL:  opts.BearerTTL,
		bcryptCost: opts.BcryptCost,
		now:        opts.Now,
	}
	if c.bearerTTL <= 0 {
		c.bearerTTL = DefaultBearerTTL
	}
	if c.bcryptCost == 0 {
		c.bcryptCost = bcrypt.DefaultCost
	}
	if c.bcryptCost < bcrypt.MinCost || c.bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d out of range", ErrConfiguration, c.bcryptCost)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// decodeKey accepts the URL-safe alphabet as well so keys produced by
// Fernet-style generators (32 bytes, URL base64) keep working.
func decodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: encryption key is empty", ErrConfiguration)
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			if len(b) != chacha20poly1305.KeySize {
				return nil, fmt.Errorf("%w: encryption key must decode to %d bytes, got %d", ErrConfiguration, chacha20poly1305.KeySize, len(b))
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: encryption key is not base64", ErrConfiguration)
}

// HashPassword returns a salted bcrypt hash of plain.
func (c *Credentials) HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), c.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares a bcrypt hash with a plain password.
func (c *Credentials) VerifyPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
