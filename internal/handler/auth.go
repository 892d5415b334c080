package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/middleware"
	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/repository"
	"github.com/iliyamo/fitcode-qr/internal/security"
)

// UserStore is the identity store used by the auth endpoints.
type UserStore interface {
	Create(ctx context.Context, role string, p *model.Principal) error
	FindByUsername(ctx context.Context, role, username string) (*model.Principal, error)
}

// PasswordTokenIssuer hashes passwords and issues bearer tokens.
type PasswordTokenIssuer interface {
	HashPassword(plain string) (string, error)
	VerifyPassword(plain, hash string) bool
	IssueBearerToken(principalID uint64, role string) (security.BearerToken, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Users UserStore
	Creds PasswordTokenIssuer
	Log   *zap.Logger
}

func NewAuthHandler(users UserStore, creds PasswordTokenIssuer, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Users: users, Creds: creds, Log: log.Named("auth")}
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResp struct {
	Message string           `json:"message"`
	Token   string           `json:"token"`
	Expires time.Time        `json:"expires"`
	User    *model.Principal `json:"user"`
}

// Register returns the handler creating a principal of role.
func (h *AuthHandler) Register(role string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerReq
		if err := c.Bind(&req); err != nil {
			return message(c, http.StatusBadRequest, "Invalid request body")
		}
		req.Username = strings.TrimSpace(req.Username)
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		for _, f := range [][2]string{{"username", req.Username}, {"email", req.Email}, {"password", req.Password}} {
			if f[1] == "" {
				return message(c, http.StatusBadRequest, "Missing required field: "+f[0])
			}
		}
		if !strings.Contains(req.Email, "@") {
			return message(c, http.StatusBadRequest, "Invalid email address")
		}
		if len(req.Password) > maxPasswordBytes {
			return message(c, http.StatusBadRequest, "Password must be at most 72 bytes")
		}

		hash, err := h.Creds.HashPassword(req.Password)
		if err != nil {
			return respondError(c, h.Log, err)
		}
		p := &model.Principal{Username: req.Username, Email: req.Email, PasswordHash: hash}

		ctx, cancel := reqCtx(c)
		defer cancel()
		if err := h.Users.Create(ctx, role, p); err != nil {
			return respondError(c, h.Log, err)
		}
		h.Log.Info("principal registered", zap.String("role", role), zap.Uint64("id", p.ID))
		return c.JSON(http.StatusCreated, echo.Map{
			"message": titleRole(role) + " registered successfully",
			"user":    p,
		})
	}
}

// Login returns the handler authenticating a principal of role.
func (h *AuthHandler) Login(role string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginReq
		if err := c.Bind(&req); err != nil {
			return message(c, http.StatusBadRequest, "Invalid request body")
		}
		if strings.TrimSpace(req.Username) == "" || req.Password == "" {
			return message(c, http.StatusBadRequest, "Username and password are required")
		}

		ctx, cancel := reqCtx(c)
		defer cancel()
		p, err := h.Users.FindByUsername(ctx, role, req.Username)
		if err != nil && !errors.Is(err, repository.ErrPrincipalNotFound) {
			return respondError(c, h.Log, err)
		}
		if p == nil || !h.Creds.VerifyPassword(req.Password, p.PasswordHash) {
			return message(c, http.StatusUnauthorized, "Invalid credentials")
		}

		tok, err := h.Creds.IssueBearerToken(p.ID, role)
		if err != nil {
			return respondError(c, h.Log, err)
		}
		return c.JSON(http.StatusOK, loginResp{
			Message: "Login successful",
			Token:   tok.Token,
			Expires: tok.Expires,
			User:    p,
		})
	}
}

// VerifyToken reports who the caller is.  It sits behind RequireAuth with
// either role, so reaching it means the token is valid.
func (h *AuthHandler) VerifyToken(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return message(c, http.StatusUnauthorized, "Token is invalid")
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true, "user": p, "user_type": p.Role})
}

func titleRole(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
