// Package ratelimiter enforces the per-minute call budget in front of the upstream provider.
package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// Limiter grants or denies a single upstream call. When denied, wait is the time
// until the current window rolls over.
type Limiter interface {
	TryAcquire(ctx context.Context) (granted bool, wait time.Duration)
	Status(ctx context.Context) Status
}

// Status is a read-only view of the current window.
type Status struct {
	Budget    int
	Remaining int
	ResetIn   time.Duration
}

// FixedWindow is an in-process fixed-window limiter. The window rolls lazily on the
// first call made at least one window length after it started.
type FixedWindow struct {
	mu     sync.Mutex
	budget int
	window time.Duration
	now    func() time.Time

	start time.Time
	count int
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(w *FixedWindow) {
		if now != nil {
			w.now = now
		}
	}
}

// NewFixedWindow returns a limiter granting budget calls per window.
func NewFixedWindow(budget int, window time.Duration, opts ...Option) *FixedWindow {
	if budget <= 0 {
		budget = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	w := &FixedWindow{budget: budget, window: window, now: time.Now}
	for _, o := range opts {
		o(w)
	}
	return w
}

// TryAcquire grants and counts a call when the window has budget left.
func (w *FixedWindow) TryAcquire(_ context.Context) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.rollLocked(now)
	if w.count < w.budget {
		w.count++
		return true, 0
	}
	return false, w.window - now.Sub(w.start)
}

// Status reports the remaining budget and the time until the window resets.
func (w *FixedWindow) Status(_ context.Context) Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.rollLocked(now)
	return Status{
		Budget:    w.budget,
		Remaining: w.budget - w.count,
		ResetIn:   w.window - now.Sub(w.start),
	}
}

func (w *FixedWindow) rollLocked(now time.Time) {
	if w.start.IsZero() || now.Sub(w.start) >= w.window {
		w.start = now
		w.count = 0
	}
}
