package middleware // reusable HTTP middleware for the API

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/repository"
	"github.com/iliyamo/fitcode-qr/internal/security"
)

// Authentication failures beyond those raised by the token verifier.
var (
	ErrRoleMismatch      = errors.New("role mismatch")
	ErrPrincipalNotFound = errors.New("principal not found")
)

// TokenVerifier checks a raw bearer token.
type TokenVerifier interface {
	VerifyBearerToken(raw string) (security.Identity, error)
}

// PrincipalFinder loads a live principal of the given role.
type PrincipalFinder interface {
	FindByID(ctx context.Context, role string, id uint64) (*model.Principal, error)
}

// authMessages are the user-facing texts; the cause never leaks further.
var authMessages = map[error]string{
	security.ErrTokenMissing:       "Token is missing",
	security.ErrTokenFormatInvalid: "Invalid token format",
	security.ErrTokenExpired:       "Token has expired",
	security.ErrTokenInvalid:       "Token is invalid",
	ErrRoleMismatch:                "Access denied for this account type",
	ErrPrincipalNotFound:           "User not found",
}

// RequireAuth returns a middleware that admits only requests carrying a
// valid bearer token for a live principal of role.  role may be
// model.RoleEither to accept owners and clients alike.  On success the
// principal is stored in the context; see CurrentPrincipal.  Every failure
// is a 401 with a message and the wrapped handler never runs.
func RequireAuth(verifier TokenVerifier, users PrincipalFinder, role string, log *zap.Logger) echo.MiddlewareFunc {
	log = log.Named("auth")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := authenticate(c, verifier, users, role)
			if err != nil {
				msg, ok := authMessages[err]
				if !ok {
					log.Error("authentication failed", zap.Error(err))
					msg = "Token is invalid"
				} else {
					log.Debug("request rejected", zap.Error(err), zap.String("path", c.Path()))
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": msg})
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

func authenticate(c echo.Context, verifier TokenVerifier, users PrincipalFinder, role string) (*model.Principal, error) {
	raw, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return nil, err
	}
	id, err := verifier.VerifyBearerToken(raw)
	if err != nil {
		return nil, err
	}
	if role != model.RoleEither && id.Role != role {
		return nil, ErrRoleMismatch
	}
	p, err := users.FindByID(c.Request().Context(), id.Role, id.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, err
	}
	return p, nil
}

// bearerToken extracts the token from an Authorization header value of the
// form "Bearer <token>".
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", security.ErrTokenMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return "", security.ErrTokenFormatInvalid
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsRune(token, ' ') {
		return "", security.ErrTokenFormatInvalid
	}
	return token, nil
}
