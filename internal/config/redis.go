package config

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the Redis instance backing rate limiting, the
// response cache and the per-place notify cooldown. Connection details come
// from REDIS_URL (a redis:// or rediss:// URL) or, when unset, from
// REDIS_ADDR / REDIS_HOST+REDIS_PORT with optional REDIS_PASSWORD and
// REDIS_DB.
//
// Redis is an accelerator here, not a dependency the service cannot live
// without: on a failed ping this returns nil and every consumer degrades —
// rate limiting and caching switch off, the notify cooldown fails open.
func NewRedisClient() *redis.Client {
	var opts *redis.Options

	if url := os.Getenv("REDIS_URL"); url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil
		}
		opts = parsed
	} else {
		addr := os.Getenv("REDIS_ADDR")
		if addr == "" {
			host := envStr("REDIS_HOST", "localhost")
			port := envStr("REDIS_PORT", "6379")
			addr = host + ":" + port
		}
		opts = &redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
