package config

import "time"

// CacheConfig defines settings for the response cache placed in front of the
// public data-server directory.  When Enabled is false or no Redis client is
// configured, caching is disabled.  Invalidate controls whether admin writes
// to the registry purge the cached entries immediately.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
	Invalidate   bool
}

// LoadCacheConfig reads CACHE_* environment variables.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "vocabsync:cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
		Invalidate:   envBool("CACHE_INVALIDATE_ON_WRITE", true),
	}
}
