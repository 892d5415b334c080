package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/config"
	"github.com/iliyamo/fitcode-qr/internal/model"
)

// snapshot is a response as stored in Redis.
type snapshot struct {
	Status int         `json:"s"`
	Header http.Header `json:"h"`
	Body   []byte      `json:"b"`
}

// recorder tees the response body into a bounded buffer.
type recorder struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	max      int
	overflow bool
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.overflow {
		if r.max > 0 && r.body.Len()+len(b) > r.max {
			r.overflow = true
			r.body.Reset()
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// genKey holds the cache generation of one principal.  Entries are keyed
// by generation, so bumping it retires everything cached before.
func genKey(prefix, who string) string {
	return prefix + ":gen:" + who
}

// cacheKey always includes the caller and its generation so analytics of
// one owner are never served to another, nor after a write.
func cacheKey(cfg config.CacheConfig, c echo.Context, gen string) string {
	r := c.Request()
	var sb strings.Builder
	sb.WriteString(principalKey(c) + "#" + gen)
	switch strings.ToLower(cfg.KeyStrategy) {
	case "principal_route":
		sb.WriteString("|" + c.Path())
	case "principal_method_route_query":
		sb.WriteString("|" + r.Method + "|" + c.Path() + "?" + r.URL.RawQuery)
	default: // principal_route_query
		sb.WriteString("|" + c.Path() + "?" + r.URL.RawQuery)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return cfg.Prefix + ":" + hex.EncodeToString(sum[:16])
}

func replay(c echo.Context, s snapshot) error {
	h := c.Response().Header()
	for k, vs := range s.Header {
		if k == echo.HeaderContentLength || k == echo.HeaderXRequestID {
			continue
		}
		h[k] = vs
	}
	h.Set("X-Cache", "HIT")
	return c.Blob(s.Status, h.Get(echo.HeaderContentType), s.Body)
}

// NewRedisCache serves repeated GETs from Redis for TTL.  Only 200
// responses are stored and bodies over MaxBodyBytes are skipped.  It must
// run after RequireAuth.  Without Redis it is a pass-through.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	log = log.Named("cache")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			ctx := c.Request().Context()
			gen, err := rdb.Get(ctx, genKey(cfg.Prefix, principalKey(c))).Result()
			switch {
			case errors.Is(err, redis.Nil):
				gen = "0"
			case err != nil:
				log.Warn("cache generation unavailable", zap.Error(err))
				return next(c)
			}
			key := cacheKey(cfg, c, gen)

			raw, err := rdb.Get(ctx, key).Bytes()
			switch {
			case err == nil:
				var s snapshot
				if json.Unmarshal(raw, &s) == nil {
					return replay(c, s)
				}
			case !errors.Is(err, redis.Nil):
				log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
			}

			rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, max: cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.overflow {
				return nil
			}

			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			hdr.Del(echo.HeaderXRequestID)
			bs, err := json.Marshal(snapshot{Status: rec.status, Header: hdr, Body: rec.body.Bytes()})
			if err != nil {
				return nil
			}
			if err := rdb.Set(context.WithoutCancel(ctx), key, bs, cfg.TTL).Err(); err != nil {
				log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}

// CacheInvalidator retires cached responses by moving a principal to a new
// generation.  A nil invalidator, or one without Redis, does nothing.
type CacheInvalidator struct {
	rdb    *redis.Client
	prefix string
}

func NewCacheInvalidator(cfg config.CacheConfig, rdb *redis.Client) *CacheInvalidator {
	return &CacheInvalidator{rdb: rdb, prefix: cfg.Prefix}
}

// InvalidateOwner retires the cached analytics of an owner.
func (v *CacheInvalidator) InvalidateOwner(ctx context.Context, ownerID uint64) error {
	return v.bump(ctx, keyFor(model.RoleOwner, ownerID))
}

func (v *CacheInvalidator) bump(ctx context.Context, who string) error {
	if v == nil || v.rdb == nil {
		return nil
	}
	return v.rdb.Incr(ctx, genKey(v.prefix, who)).Err()
}

// InvalidateOnWrite retires the caller's cached responses after every
// successful non-GET request.  It must run after RequireAuth.
func InvalidateOnWrite(v *CacheInvalidator, log *zap.Logger) echo.MiddlewareFunc {
	log = log.Named("cache")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				return err
			}
			r := c.Request()
			if r.Method == http.MethodGet || r.Method == http.MethodHead || c.Response().Status >= 400 {
				return nil
			}
			if err := v.bump(context.WithoutCancel(r.Context()), principalKey(c)); err != nil {
				log.Warn("cache invalidation failed", zap.Error(err))
			}
			return nil
		}
	}
}
