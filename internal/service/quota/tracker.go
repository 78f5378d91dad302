// Package quota tracks the daily upstream call budget.
package quota

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

// StateKey is the KV key under which the daily state is persisted.
const StateKey = "quota:daily"

const dateLayout = "2006-01-02"

// Alert levels.
const (
	LevelWarning   = "warning"
	LevelCritical  = "critical"
	LevelExhausted = "exhausted"
)

// State is the persisted form: a UTC calendar date and the calls counted on it.
type State struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Alert describes a threshold crossing.
type Alert struct {
	Level      string    `json:"level"`
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
	Percentage int       `json:"percentage"`
	Date       string    `json:"date"`
	At         time.Time `json:"at"`
}

// AlertSink receives threshold alerts. Delivery is best effort.
type AlertSink interface {
	PublishQuotaAlert(ctx context.Context, a Alert) error
}

// Tracker is the process-local daily quota. It implements domain.QuotaGate and never
// returns errors; persistence failures are logged.
type Tracker struct {
	mu     sync.Mutex
	store  domain.KVStore
	limit  int
	now    func() time.Time
	alerts AlertSink

	state            State
	exhaustedAlerted string
}

var _ domain.QuotaGate = (*Tracker)(nil)

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithAlertSink forwards threshold alerts to s.
func WithAlertSink(s AlertSink) Option {
	return func(t *Tracker) { t.alerts = s }
}

// NewTracker loads the persisted state from store. Missing or corrupt state starts a fresh day.
func NewTracker(ctx context.Context, store domain.KVStore, limit int, opts ...Option) *Tracker {
	t := &Tracker{store: store, limit: limit, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	t.state = t.load(ctx)
	observability.SetQuotaUsed(t.state.Count)
	return t
}

func (t *Tracker) today() string { return t.now().UTC().Format(dateLayout) }

func (t *Tracker) load(ctx context.Context) State {
	lg := observability.LoggerFromContext(ctx)
	fresh := State{Date: t.today()}

	raw, ok, err := t.store.Get(ctx, StateKey)
	if err != nil {
		lg.Warn("quota state unreadable; starting fresh", slog.Any("error", err))
		return fresh
	}
	if !ok {
		return fresh
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		lg.Warn("quota state corrupt; starting fresh", slog.Any("error", err))
		return fresh
	}
	if _, err := time.Parse(dateLayout, st.Date); err != nil || st.Count < 0 {
		lg.Warn("quota state invalid; starting fresh", slog.String("date", st.Date), slog.Int("count", st.Count))
		return fresh
	}
	return st
}

// rollLocked resets the counter when the stored date is not today. It reports
// whether a reset happened.
func (t *Tracker) rollLocked() bool {
	today := t.today()
	if t.state.Date == today {
		return false
	}
	t.state = State{Date: today}
	return true
}

func (t *Tracker) persist(ctx context.Context, st State) {
	b, _ := json.Marshal(st)
	if err := t.store.Set(ctx, StateKey, string(b)); err != nil {
		observability.LoggerFromContext(ctx).Warn("quota state persist failed", slog.Any("error", err))
	}
}

// Allow reports whether another upstream call fits in today's budget.
func (t *Tracker) Allow(ctx context.Context) (bool, error) {
	t.mu.Lock()
	rolled := t.rollLocked()
	st := t.state
	allowed := st.Count < t.limit
	notify := !allowed && t.exhaustedAlerted != st.Date
	if notify {
		t.exhaustedAlerted = st.Date
	}
	if rolled {
		t.persist(ctx, st)
	}
	t.mu.Unlock()

	if rolled {
		observability.SetQuotaUsed(0)
	}
	if !allowed {
		a := t.alert(LevelExhausted, st)
		b, _ := json.Marshal(a)
		observability.LoggerFromContext(ctx).Error("ADMIN_ALERT", slog.String("alert", string(b)))
		if notify {
			t.dispatch(ctx, a)
		}
	}
	return allowed, nil
}

// Increment counts one successful upstream call.
func (t *Tracker) Increment(ctx context.Context) error {
	t.mu.Lock()
	t.rollLocked()
	before := t.state.Count
	t.state.Count++
	st := t.state
	// Persist under the lock so concurrent increments are written in order.
	t.persist(ctx, st)
	t.mu.Unlock()

	t.counted(ctx, before, st)
	return nil
}

// TryIncrement counts one call only if it fits in today's budget. Check and count
// happen under one lock, so concurrent callers never overshoot the limit.
func (t *Tracker) TryIncrement(ctx context.Context) (domain.IncrementResult, error) {
	t.mu.Lock()
	rolled := t.rollLocked()
	before := t.state.Count
	allowed := before < t.limit
	if allowed {
		t.state.Count++
	}
	st := t.state
	if allowed || rolled {
		t.persist(ctx, st)
	}
	t.mu.Unlock()

	if allowed {
		t.counted(ctx, before, st)
	} else {
		// Emits the exhausted alert.
		_, _ = t.Allow(ctx)
	}
	return domain.IncrementResult{
		Allowed:   allowed,
		Used:      st.Count,
		Remaining: max(t.limit-st.Count, 0),
		Limit:     t.limit,
	}, nil
}

// counted reports a new count and alerts on the 80% and 90% crossings.
func (t *Tracker) counted(ctx context.Context, before int, st State) {
	observability.SetQuotaUsed(st.Count)

	prev := percentage(before, t.limit)
	after := percentage(st.Count, t.limit)
	lg := observability.LoggerFromContext(ctx)
	lg.Info("quota usage", slog.Int("used", st.Count), slog.Int("limit", t.limit), slog.Int("percentage", after))
	switch {
	case prev < 90 && after >= 90:
		lg.Error("quota critical: 90% of daily budget used", slog.Int("used", st.Count), slog.Int("limit", t.limit))
		t.dispatch(ctx, t.alert(LevelCritical, st))
	case prev < 80 && after >= 80:
		lg.Warn("quota warning: 80% of daily budget used", slog.Int("used", st.Count), slog.Int("limit", t.limit))
		t.dispatch(ctx, t.alert(LevelWarning, st))
	}
}

// Usage returns today's snapshot.
func (t *Tracker) Usage(ctx context.Context) (domain.Usage, error) {
	t.mu.Lock()
	if t.rollLocked() {
		t.persist(ctx, t.state)
	}
	st := t.state
	t.mu.Unlock()
	return domain.Usage{
		Used:       st.Count,
		Remaining:  max(t.limit-st.Count, 0),
		Limit:      t.limit,
		Percentage: percentage(st.Count, t.limit),
	}, nil
}

func (t *Tracker) alert(level string, st State) Alert {
	return Alert{
		Level:      level,
		Used:       st.Count,
		Limit:      t.limit,
		Percentage: percentage(st.Count, t.limit),
		Date:       st.Date,
		At:         t.now().UTC(),
	}
}

func (t *Tracker) dispatch(ctx context.Context, a Alert) {
	observability.RecordQuotaThreshold(a.Level)
	if t.alerts == nil {
		return
	}
	if err := t.alerts.PublishQuotaAlert(ctx, a); err != nil {
		observability.LoggerFromContext(ctx).Warn("quota alert publish failed",
			slog.String("level", a.Level), slog.Any("error", err))
	}
}

func percentage(used, limit int) int {
	if limit <= 0 {
		return 100
	}
	return int(math.Round(float64(used) * 100 / float64(limit)))
}
