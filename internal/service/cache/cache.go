// Package cache stores upstream results keyed by request kind and parameters, with
// per-kind TTLs and a durable snapshot.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
)

// SnapshotKey is the KV key holding the serialized cache.
const SnapshotKey = "cache:snapshot"

// DefaultMaxEntries bounds the index when no size is configured.
const DefaultMaxEntries = 2048

// Entry is one cached payload.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Source    domain.Source   `json:"source"`
}

// Expired reports whether e is logically absent at now.
func (e Entry) Expired(now time.Time) bool { return now.After(e.ExpiresAt) }

// Stats summarizes the cache contents.
type Stats struct {
	TotalEntries   int   `json:"totalEntries"`
	APIEntries     int   `json:"apiEntries"`
	MockEntries    int   `json:"mockEntries"`
	ExpiredEntries int   `json:"expiredEntries"`
	AverageAgeMs   int64 `json:"averageAgeMs"`
}

type snapshotItem struct {
	Key   string `json:"key"`
	Entry Entry  `json:"entry"`
}

// Cache is safe for concurrent use. Every mutation rewrites the snapshot; persistence
// errors are logged and never fail the operation.
type Cache struct {
	mu         sync.Mutex
	index      *lru.Cache[string, Entry]
	store      domain.KVStore
	ttls       map[string]time.Duration
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTLs sets per-kind TTLs. Kinds absent from the map use the default TTL.
func WithTTLs(ttls map[string]time.Duration) Option {
	return func(c *Cache) {
		for k, v := range ttls {
			if v > 0 {
				c.ttls[strings.ToLower(k)] = v
			}
		}
	}
}

// WithDefaultTTL sets the TTL for kinds without an explicit entry.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.defaultTTL = d
		}
	}
}

// WithMaxEntries bounds the number of entries kept; the least recently used is dropped first.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a cache and loads the persisted snapshot, sweeping entries that already expired.
func New(ctx context.Context, store domain.KVStore, opts ...Option) (*Cache, error) {
	c := &Cache{
		store: store,
		ttls: map[string]time.Duration{
			string(domain.KindSpecs):      7 * 24 * time.Hour,
			string(domain.KindComparison): 24 * time.Hour,
			string(domain.KindPrice):      time.Hour,
		},
		defaultTTL: 7 * 24 * time.Hour,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	idx, err := lru.New[string, Entry](c.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("op=cache.New: %w", err)
	}
	c.index = idx
	c.load(ctx)
	return c, nil
}

// Key builds the case-insensitive composite key for kind and parts.
func Key(kind domain.Kind, parts ...string) string {
	fields := make([]string, 0, len(parts)+1)
	fields = append(fields, strings.TrimSpace(string(kind)))
	for _, p := range parts {
		fields = append(fields, strings.TrimSpace(p))
	}
	return strings.ToLower(strings.Join(fields, "|"))
}

// TTL returns the lifetime applied to entries of kind.
func (c *Cache) TTL(kind domain.Kind) time.Duration {
	if d, ok := c.ttls[strings.ToLower(string(kind))]; ok {
		return d
	}
	return c.defaultTTL
}

// Get returns the cached payload and its provenance. An expired entry is evicted by the
// read that finds it.
func (c *Cache) Get(ctx context.Context, kind domain.Kind, parts ...string) (json.RawMessage, domain.Provenance, bool) {
	key := Key(kind, parts...)
	now := c.now()

	c.mu.Lock()
	e, ok := c.index.Get(key)
	if ok && e.Expired(now) {
		c.index.Remove(key)
		c.persistLocked(ctx)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		observability.ObserveCacheLookup(string(kind), "miss")
		return nil, domain.Provenance{}, false
	}
	observability.ObserveCacheLookup(string(kind), "hit")
	return e.Data, domain.Provenance{
		Cached: true,
		AgeMs:  now.Sub(e.CreatedAt).Milliseconds(),
		Source: e.Source,
	}, true
}

// GetInto decodes a cached payload into v. A payload that no longer decodes is treated as a miss.
func (c *Cache) GetInto(ctx context.Context, v any, kind domain.Kind, parts ...string) (domain.Provenance, bool) {
	data, prov, ok := c.Get(ctx, kind, parts...)
	if !ok {
		return domain.Provenance{}, false
	}
	if err := json.Unmarshal(data, v); err != nil {
		observability.LoggerFromContext(ctx).Warn("cached payload undecodable",
			slog.String("kind", string(kind)), slog.Any("error", err))
		return domain.Provenance{}, false
	}
	return prov, true
}

// Set stores data under kind and parts, overwriting any previous entry.
func (c *Cache) Set(ctx context.Context, kind domain.Kind, data any, source domain.Source, parts ...string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("op=cache.Set: %w", err)
	}
	if source == "" {
		source = domain.SourceAPI
	}
	now := c.now()
	e := Entry{Data: raw, CreatedAt: now, ExpiresAt: now.Add(c.TTL(kind)), Source: source}

	c.mu.Lock()
	c.index.Add(Key(kind, parts...), e)
	c.persistLocked(ctx)
	c.mu.Unlock()
	return nil
}

// IsExpired reports whether the entry is absent or past its expiry. It does not evict.
func (c *Cache) IsExpired(kind domain.Kind, parts ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index.Peek(Key(kind, parts...))
	return !ok || e.Expired(c.now())
}

// Invalidate removes one entry. It reports whether the entry existed.
func (c *Cache) Invalidate(ctx context.Context, kind domain.Kind, parts ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.index.Remove(Key(kind, parts...))
	c.persistLocked(ctx)
	return removed
}

// InvalidateKind removes every entry of kind and returns how many were dropped.
func (c *Cache) InvalidateKind(ctx context.Context, kind domain.Kind) int {
	prefix := Key(kind) + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range c.index.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.index.Remove(k)
			n++
		}
	}
	if n > 0 {
		c.persistLocked(ctx)
	}
	return n
}

// Clear drops all entries and the persisted snapshot.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Purge()
	if err := c.store.Delete(ctx, SnapshotKey); err != nil {
		observability.LoggerFromContext(ctx).Warn("cache snapshot delete failed", slog.Any("error", err))
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int { return c.index.Len() }

// Stats reports entry counts and the mean age. Expired entries not yet swept are counted.
func (c *Cache) Stats() Stats {
	now := c.now()
	c.mu.Lock()
	entries := c.index.Values()
	c.mu.Unlock()

	var st Stats
	var age time.Duration
	for _, e := range entries {
		st.TotalEntries++
		switch e.Source {
		case domain.SourceMock:
			st.MockEntries++
		default:
			st.APIEntries++
		}
		if e.Expired(now) {
			st.ExpiredEntries++
		}
		age += now.Sub(e.CreatedAt)
	}
	if st.TotalEntries > 0 {
		st.AverageAgeMs = (age / time.Duration(st.TotalEntries)).Milliseconds()
	}
	return st
}

// Sweep evicts every expired entry and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	swept := 0
	for _, k := range c.index.Keys() {
		if e, ok := c.index.Peek(k); ok && e.Expired(now) {
			c.index.Remove(k)
			swept++
		}
	}
	if swept > 0 {
		c.persistLocked(ctx)
	}
	return swept
}

func (c *Cache) load(ctx context.Context) {
	lg := observability.LoggerFromContext(ctx)
	raw, ok, err := c.store.Get(ctx, SnapshotKey)
	if err != nil {
		lg.Warn("cache snapshot unreadable; starting empty", slog.Any("error", err))
		return
	}
	if !ok || raw == "" {
		return
	}
	var items []snapshotItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		lg.Warn("cache snapshot corrupt; starting empty", slog.Any("error", err))
		return
	}

	now := c.now()
	swept := 0
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range items {
		if it.Key == "" || it.Entry.Expired(now) {
			swept++
			continue
		}
		c.index.Add(it.Key, it.Entry)
	}
	if swept > 0 {
		lg.Info("cache expired entries swept", slog.Int("swept", swept), slog.Int("kept", c.index.Len()))
		c.persistLocked(ctx)
	}
}

// persistLocked writes keys oldest first so a reload keeps recency order.
func (c *Cache) persistLocked(ctx context.Context) {
	keys := c.index.Keys()
	items := make([]snapshotItem, 0, len(keys))
	for _, k := range keys {
		if e, ok := c.index.Peek(k); ok {
			items = append(items, snapshotItem{Key: k, Entry: e})
		}
	}
	b, err := json.Marshal(items)
	if err == nil {
		err = c.store.Set(ctx, SnapshotKey, string(b))
	}
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("cache snapshot persist failed", slog.Any("error", err))
	}
}
