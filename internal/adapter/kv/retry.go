package kv

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-device-compare/internal/config"
)

// retryStore retries failed operations of the wrapped store with bounded
// exponential backoff. Errors still surface once the budget is spent.
type retryStore struct {
	Store
	cfg config.RetryConfig
}

// WithRetry wraps s. A zero MaxElapsedTime disables retries.
func WithRetry(s Store, cfg config.RetryConfig) Store {
	if cfg.MaxElapsedTime <= 0 {
		return s
	}
	return &retryStore{Store: s, cfg: cfg}
}

func (r *retryStore) newBackOff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = r.cfg.MaxElapsedTime
	if r.cfg.InitialInterval > 0 {
		expo.InitialInterval = r.cfg.InitialInterval
	}
	if r.cfg.MaxInterval > 0 {
		expo.MaxInterval = r.cfg.MaxInterval
	}
	if r.cfg.Multiplier > 0 {
		expo.Multiplier = r.cfg.Multiplier
	}
	return backoff.WithContext(expo, ctx)
}

func (r *retryStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := backoff.RetryNotify(func() error {
		var err error
		v, ok, err = r.Store.Get(ctx, key)
		return err
	}, r.newBackOff(ctx), notify("get", key))
	return v, ok, err
}

func (r *retryStore) Set(ctx context.Context, key, value string) error {
	return backoff.RetryNotify(func() error {
		return r.Store.Set(ctx, key, value)
	}, r.newBackOff(ctx), notify("set", key))
}

func (r *retryStore) Delete(ctx context.Context, key string) error {
	return backoff.RetryNotify(func() error {
		return r.Store.Delete(ctx, key)
	}, r.newBackOff(ctx), notify("delete", key))
}

func notify(op, key string) backoff.Notify {
	return func(err error, next time.Duration) {
		slog.Warn("kv operation failed; retrying",
			slog.String("op", op),
			slog.String("key", key),
			slog.Duration("next", next),
			slog.Any("error", err))
	}
}
