package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/retreat-reservation/internal/config"
)

// bucketScript implements a token bucket in a single round trip. The bucket
// starts full at `burst` tokens and regains one token every `refill_ms`.
// State lives in a Redis hash so concurrent callers on different app
// instances share one bucket per key. Returns {allowed, remaining, wait_ms}.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local refill_ms = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'n', 'ts')
local n = tonumber(state[1])
local ts = tonumber(state[2])
if n == nil or ts == nil then
  n = burst
  ts = now
end

local gained = math.floor((now - ts) / refill_ms)
if gained > 0 then
  n = math.min(burst, n + gained)
  ts = ts + gained * refill_ms
end

local allowed = 0
local wait = 0
if n > 0 then
  allowed = 1
  n = n - 1
else
  wait = refill_ms - (now - ts)
  if wait < 0 then wait = 0 end
end

redis.call('HMSET', key, 'n', n, 'ts', ts)
redis.call('EXPIRE', key, ttl)
return {allowed, n, wait}
`)

// NewTokenBucket rate-limits requests against a shared Redis bucket. A nil
// client or a disabled config yields a pass-through middleware, and a Redis
// error at request time lets the request proceed: losing the limiter for a
// moment is cheaper than refusing traffic.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			args := []interface{}{
				time.Now().UnixMilli(),
				cfg.Burst,
				cfg.RefillEvery.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}
			res, err := bucketScript.Run(ctx, rdb, []string{bucketKey(cfg, c)}, args...).Int64Slice()
			if err != nil || len(res) != 3 {
				return next(c)
			}
			allowed, remaining, waitMs := res[0] == 1, res[1], res[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int((waitMs + 999) / 1000)
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

// bucketKey scopes a bucket per the configured strategy. The default
// "ip_route" keeps one bucket per client IP per method+route, so a burst of
// wait-queue signups cannot starve unrelated endpoints for the same client.
func bucketKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	switch cfg.Scope {
	case "user":
		return cfg.Prefix + ":u:" + currentUserID(c)
	case "ip":
		return cfg.Prefix + ":ip:" + ip
	default:
		return cfg.Prefix + ":ip:" + ip + ":" + c.Request().Method + ":" + c.Path()
	}
}
