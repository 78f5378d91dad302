package app

import (
	"context"
	"errors"
	"fmt"
)

// Pinger is anything that can report liveness, such as the KV store.
type Pinger interface{ Ping(ctx context.Context) error }

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal interface for a Redis client needed for readiness.
type RedisClient interface{ Ping(ctx context.Context) RedisPingResult }

// BuildReadinessCheck returns the /readyz check: the KV store must answer, and so
// must the Redis rate-limit backend when one is in use (rdb may be nil).
func BuildReadinessCheck(store Pinger, rdb RedisClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		if store == nil {
			errs = append(errs, fmt.Errorf("kv: not configured"))
		} else if err := store.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kv: %w", err))
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				errs = append(errs, fmt.Errorf("redis: %w", err))
			}
		}
		return errors.Join(errs...)
	}
}
