// Package handler holds the echo handlers of the API.  Handlers parse and
// validate input, call a repository or service, and translate errors into
// {"message": ...} responses.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/fitcode-qr/internal/middleware"
	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/repository"
	"github.com/iliyamo/fitcode-qr/internal/service"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// principal returns the caller stored by the auth middleware.  Routes are
// always wrapped, so a miss is a wiring bug and answered with 401.
func principal(c echo.Context) (*model.Principal, error) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, echo.Map{"message": "Token is missing"})
	}
	return p, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"message": msg})
}

// errorResponses maps domain errors to status and message.  Order matters
// only where errors wrap each other.
var errorResponses = []struct {
	err    error
	status int
	msg    string
}{
	{repository.ErrGymNotFound, http.StatusNotFound, "Gym not found"},
	{service.ErrNoGymFound, http.StatusNotFound, "No gym found"},
	{repository.ErrMachineNotFound, http.StatusNotFound, "Machine not found"},
	{repository.ErrQRTokenNotFound, http.StatusNotFound, "QR code not found"},
	{repository.ErrBookmarkNotFound, http.StatusNotFound, "Bookmark not found"},
	{repository.ErrPrincipalNotFound, http.StatusNotFound, "User not found"},
	{repository.ErrUsernameExists, http.StatusBadRequest, "Username already exists"},
	{repository.ErrEmailExists, http.StatusBadRequest, "Email already exists"},
	{repository.ErrGymExists, http.StatusBadRequest, "Owner already has a gym"},
	{repository.ErrBookmarkExists, http.StatusBadRequest, "Machine already bookmarked"},
	{bcrypt.ErrPasswordTooLong, http.StatusBadRequest, "Password must be at most 72 bytes"},
	{service.ErrTokenRequired, http.StatusBadRequest, "Token is required"},
	{service.ErrInvalidQRCode, http.StatusNotFound, "Invalid QR code"},
	{service.ErrInvalidQRCodeData, http.StatusBadRequest, "Invalid QR code"},
	{service.ErrPlatformMismatch, http.StatusBadRequest, "Invalid QR code"},
}

// knownError looks err up in errorResponses.
func knownError(err error) (int, string, bool) {
	for _, r := range errorResponses {
		if errors.Is(err, r.err) {
			return r.status, r.msg, true
		}
	}
	return 0, "", false
}

// respondError writes the response for err.  Unknown errors are logged
// and answered with a generic 500.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	if status, msg, ok := knownError(err); ok {
		return message(c, status, msg)
	}
	log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("route", c.Path()),
		zap.Error(err))
	return message(c, http.StatusInternalServerError, "Internal server error")
}
