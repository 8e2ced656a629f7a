package config

// Redis backs the per-user rate limiter and the public server list cache.
// Both degrade to pass-through when the client is nil, so a node without
// Redis still serves every endpoint.

import (
	"context"
	"crypto/tls"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client from the environment and pings it.
// Supported variables are:
//
//	REDIS_URL – redis:// or rediss:// URL (takes precedence)
//	REDIS_HOST and REDIS_PORT, or REDIS_ADDR – server address
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS when "true" or "1"
//
// It returns nil when Redis is disabled (REDIS_DISABLED=true) or unreachable.
func NewRedisClient(log *slog.Logger) *redis.Client {
	if envBool("REDIS_DISABLED", false) {
		return nil
	}
	opts, err := redisOptions()
	if err != nil {
		log.Warn("redis: invalid configuration, continuing without it", slog.Any("error", err))
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis: ping failed, rate limit and cache disabled",
			slog.String("addr", opts.Addr), slog.Any("error", err))
		_ = client.Close()
		return nil
	}
	return client
}

func redisOptions() (*redis.Options, error) {
	if u := os.Getenv("REDIS_URL"); u != "" {
		return redis.ParseURL(u)
	}
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}
	if v := os.Getenv("REDIS_TLS"); strings.EqualFold(v, "true") || v == "1" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}
