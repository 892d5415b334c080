package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/config"
)

// takeScript refills the bucket continuously from the elapsed time and
// takes one token.  State is {t: tokens (fractional), ts: last update ms}.
// Returns {allowed, whole tokens left, ms until the next token}.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
local rate = tonumber(ARGV[3]) / tonumber(ARGV[4])
local st = redis.call('HMGET', KEYS[1], 't', 'ts')
local tokens = tonumber(st[1]) or cap
local ts = tonumber(st[2]) or now
tokens = math.min(cap, tokens + math.max(0, now - ts) * rate)
local ok, wait = 0, 0
if tokens >= 1 then
  ok = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) / rate)
end
redis.call('HSET', KEYS[1], 't', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {ok, math.floor(tokens), wait}
`)

type verdict struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

type bucket struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
}

func (b bucket) take(ctx context.Context, key string) (verdict, error) {
	vals, err := takeScript.Run(ctx, b.rdb, []string{key},
		time.Now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		b.cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return verdict{}, err
	}
	if len(vals) != 3 {
		return verdict{}, redis.Nil
	}
	return verdict{allowed: vals[0] == 1, remaining: vals[1], retry: time.Duration(vals[2]) * time.Millisecond}, nil
}

// NewTokenBucket returns a Redis-backed token bucket limiter.  When
// limiting is disabled or rdb is nil it is a pass-through; a Redis error
// on a request lets that request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	b := bucket{rdb: rdb, cfg: cfg}
	log = log.Named("ratelimit")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			v, err := b.take(c.Request().Context(), key)
			if err != nil {
				log.Warn("limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if v.allowed {
				return next(c)
			}

			// round up so clients never retry early
			secs := int((v.retry + time.Second - 1) / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				log.Info("request limited", zap.String("key", key), zap.Duration("retry", v.retry))
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"message":     "Rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// rateKey picks the bucket for a request.  "principal" (the default) gives
// each authenticated caller a bucket and falls back to the client IP for
// anonymous routes such as login; "ip" always uses the IP;
// "principal_route" splits a caller's budget per route.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	who := principalKey(c)
	if who == anonymous {
		who = "ip-" + c.RealIP()
	}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		return cfg.Prefix + ":ip-" + c.RealIP()
	case "principal_route":
		return cfg.Prefix + ":" + who + ":" + c.Request().Method + " " + c.Path()
	default:
		return cfg.Prefix + ":" + who
	}
}
