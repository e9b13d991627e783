package config

import "time"

// CacheConfig tunes the Redis response cache in front of the public retreat
// listing. The listing is read-heavy and safe to serve slightly stale;
// anything whose freshness matters (the live seat count on the detail view,
// every authenticated endpoint) stays uncached. Only GET responses with a
// 200 status are stored.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
	MaxBody int // largest response body to store, in bytes
}

func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("CACHE_TTL", 30*time.Second),
		Prefix:  envStr("CACHE_PREFIX", "cache"),
		MaxBody: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return cfg
}
