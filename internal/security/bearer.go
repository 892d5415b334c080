package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

// Bearer token failures.  Every one of them maps to 401.
var (
	ErrTokenMissing       = errors.New("token is missing")
	ErrTokenFormatInvalid = errors.New("token format invalid")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("token is invalid")
)

// BearerToken is a signed token together with its expiry.
type BearerToken struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Identity is what a verified bearer token asserts.
type Identity struct {
	PrincipalID uint64
	Role        string
}

// bearerClaims keeps the claim names used by the web and mobile clients.
type bearerClaims struct {
	UserID   uint64 `json:"user_id"`
	UserType string `json:"user_type"`
	jwt.RegisteredClaims
}

// IssueBearerToken signs an HS256 token for the principal that expires
// after the configured TTL.
func (c *Credentials) IssueBearerToken(principalID uint64, role string) (BearerToken, error) {
	now := c.now().UTC()
	exp := now.Add(c.bearerTTL)
	claims := bearerClaims{
		UserID:   principalID,
		UserType: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return BearerToken{}, err
	}
	return BearerToken{Token: signed, Expires: exp}, nil
}

// VerifyBearerToken checks a raw token and returns the identity it
// carries.  Expiry is checked before the signature so a stale token is
// always reported as expired.
func (c *Credentials) VerifyBearerToken(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrTokenMissing
	}

	var unverified bearerClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &unverified); err != nil {
		return Identity{}, ErrTokenInvalid
	}
	if unverified.ExpiresAt == nil {
		return Identity{}, ErrTokenInvalid
	}
	if !c.now().Before(unverified.ExpiresAt.Time) {
		return Identity{}, ErrTokenExpired
	}

	var claims bearerClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}
	if claims.UserID == 0 || !model.ValidRole(claims.UserType) {
		return Identity{}, ErrTokenInvalid
	}
	return Identity{PrincipalID: claims.UserID, Role: claims.UserType}, nil
}
