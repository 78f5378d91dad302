// Package kv provides the durable string key-value stores behind quota state and
// cache snapshots.
package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-device-compare/internal/config"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

// Store is a domain.KVStore that can report liveness and release its resources.
type Store interface {
	domain.KVStore
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the store selected by cfg.KVBackend and wraps it with bounded retries.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.KVBackend) {
	case "memory":
		s = NewMemoryStore()
	case "file":
		s, err = OpenFileStore(ctx, cfg.KVFilePath)
	case "redis":
		var opts *redis.Options
		opts, err = redis.ParseURL(cfg.RedisURL)
		if err == nil {
			s = NewRedisStore(redis.NewClient(opts), "adc:")
		}
	case "sqlite":
		s, err = OpenSQLiteStore(ctx, cfg.SQLitePath)
	case "postgres":
		s, err = OpenPostgresStore(ctx, cfg.DBURL)
	default:
		err = fmt.Errorf("unknown backend %q", cfg.KVBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("op=kv.Open: %w", err)
	}
	return WithRetry(s, cfg.GetKVRetryConfig()), nil
}
