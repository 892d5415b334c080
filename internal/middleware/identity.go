package middleware

// identity.go holds the context accessors for the authenticated principal.
// Rate-limit and cache keys use principalKey so buckets and cached
// responses never mix owners, clients and anonymous callers.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

const (
	principalCtxKey = "principal"
	anonymous       = "anon"
)

func setPrincipal(c echo.Context, p *model.Principal) {
	c.Set(principalCtxKey, p)
}

// CurrentPrincipal returns the principal stored by RequireAuth.
func CurrentPrincipal(c echo.Context) (*model.Principal, bool) {
	p, ok := c.Get(principalCtxKey).(*model.Principal)
	return p, ok && p != nil
}

// principalKey identifies the caller as "<role>-<id>", or "anon".
func principalKey(c echo.Context) string {
	p, ok := CurrentPrincipal(c)
	if !ok {
		return anonymous
	}
	return keyFor(p.Role, p.ID)
}

func keyFor(role string, id uint64) string {
	return role + "-" + strconv.FormatUint(id, 10)
}
