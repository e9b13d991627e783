package middleware

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
)

// NotifyCooldown blocks repeated notification runs for the same wait-queue
// place. The first request claims a Redis key with SET NX and the configured
// TTL; until that key expires every further request for the same place gets
// 429 with a Retry-After header. When Redis is unavailable the middleware
// fails open so a cache outage never stops notifications entirely.
func NotifyCooldown(rdb *redis.Client, window time.Duration) echo.MiddlewareFunc {
    if rdb == nil || window <= 0 {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return func(c echo.Context) error { return next(c) } }
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            placeID := c.Param("id")
            if placeID == "" {
                return next(c)
            }
            key := "cooldown:notify:place:" + placeID

            ctx := c.Request().Context()
            ok, err := rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), window).Result()
            if err != nil {
                c.Logger().Warnf("[cooldown] redis error for key=%s: %v", key, err)
                return next(c)
            }
            if ok {
                return next(c)
            }

            ttl, err := rdb.TTL(ctx, key).Result()
            if err != nil || ttl < 0 {
                ttl = window
            }
            secs := int(ttl / time.Second)
            if secs < 1 { secs = 1 }
            c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
            return c.JSON(http.StatusTooManyRequests, map[string]any{
                "error":       "too_many_requests",
                "message":     "notification cooldown active for this place",
                "retry_after": secs,
            })
        }
    }
}
