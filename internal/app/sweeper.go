package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Sweepable is a store of expiring entries.
type Sweepable interface {
	Sweep(ctx context.Context) int
}

// CacheSweeper periodically evicts expired cache entries so the persisted snapshot
// does not carry dead weight between restarts.
type CacheSweeper struct {
	cache    Sweepable
	interval time.Duration
}

// NewCacheSweeper returns nil when there is nothing to sweep.
func NewCacheSweeper(c Sweepable, interval time.Duration) *CacheSweeper {
	if c == nil {
		return nil
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CacheSweeper{cache: c, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx ends.
func (s *CacheSweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("cache sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *CacheSweeper) sweepOnce(ctx context.Context) int {
	ctx, span := otel.Tracer("cache.sweeper").Start(ctx, "CacheSweeper.sweepOnce")
	defer span.End()

	n := s.cache.Sweep(ctx)
	span.SetAttributes(attribute.Int("cache.swept", n))
	if n > 0 {
		slog.Info("cache sweep", slog.Int("swept", n))
	}
	return n
}
