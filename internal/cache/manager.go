package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/artpar/cardsync/internal/core"
	"github.com/artpar/cardsync/internal/kv"
	"github.com/artpar/cardsync/internal/logger"
)

// entry is the stored form of every value the manager writes.
// ExpiresAt is unix milliseconds; zero means the entry never expires.
type entry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt int64           `json:"expiresAt"`
}

func (e entry) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.UnixMilli() >= e.ExpiresAt
}

// Stats provides statistics about cache reads.
type Stats struct {
	HitCount  int64   `json:"hit_count"`
	MissCount int64   `json:"miss_count"`
	HitRate   float64 `json:"hit_rate"`
	Evictions int64   `json:"evictions"`
}

// Manager is a TTL-scoped read/write layer over a kv.Store. All keys are
// stored under "<namespace>/". It is the only component that touches the store.
type Manager struct {
	store     kv.Store
	namespace string
	now       func() time.Time
	log       *zap.Logger

	statsMu   sync.Mutex
	hitCount  int64
	missCount int64
	evictions int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// New creates a Manager over store using the given namespace.
func New(store kv.Store, namespace string, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		namespace: strings.TrimSuffix(namespace, "/"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.WithModule("cache")
	}
	return m
}

// Key returns the namespaced store key for a logical key.
func (m *Manager) Key(key string) string {
	return m.namespace + "/" + key
}

func (m *Manager) prefix() string {
	return m.namespace + "/"
}

// Set serializes value and stores it with an expiry of now+ttl.
// A ttl <= 0 stores an entry that never expires. It returns false when the
// value could not be stored; callers treat that as "not cached".
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		m.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}

	e := entry{Value: raw}
	if ttl > 0 {
		e.ExpiresAt = m.now().Add(ttl).UnixMilli()
	}

	data, err := json.Marshal(e)
	if err != nil {
		m.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}

	if err := m.store.Set(ctx, m.Key(key), data); err != nil {
		m.log.Warn("cache write failed", zap.String("key", key), zap.Error(core.LocalStorage(err)))
		return false
	}
	return true
}

// Get decodes the value stored under key into out. It returns false on a
// miss. Expired and undecodable entries are evicted and count as misses.
func (m *Manager) Get(ctx context.Context, key string, out any) bool {
	data, err := m.store.Get(ctx, m.Key(key))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			m.log.Warn("cache read failed", zap.String("key", key), zap.Error(core.LocalStorage(err)))
		}
		m.recordMiss()
		return false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		m.evict(ctx, key, "undecodable")
		m.recordMiss()
		return false
	}

	if e.expired(m.now()) {
		m.evict(ctx, key, "expired")
		m.recordMiss()
		return false
	}

	if out != nil {
		if err := json.Unmarshal(e.Value, out); err != nil {
			m.evict(ctx, key, "undecodable")
			m.recordMiss()
			return false
		}
	}

	m.recordHit()
	return true
}

// Remove deletes key. Failures are logged.
func (m *Manager) Remove(ctx context.Context, key string) {
	if err := m.store.Delete(ctx, m.Key(key)); err != nil {
		m.log.Warn("cache delete failed", zap.String("key", key), zap.Error(core.LocalStorage(err)))
	}
}

// SweepExpired evicts every namespaced entry whose expiry has passed, along
// with entries that cannot be decoded. It returns the number evicted.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	keys, err := m.store.Keys(ctx, m.prefix())
	if err != nil {
		return 0, core.LocalStorage(fmt.Errorf("sweep: list keys: %w", err))
	}

	now := m.now()
	var (
		evicted int
		errs    error
	)
	for _, full := range keys {
		data, err := m.store.Get(ctx, full)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, core.LocalStorage(fmt.Errorf("sweep: read %s: %w", full, err)))
			continue
		}

		var e entry
		if err := json.Unmarshal(data, &e); err == nil && !e.expired(now) {
			continue
		}

		if err := m.store.Delete(ctx, full); err != nil {
			errs = multierr.Append(errs, core.LocalStorage(fmt.Errorf("sweep: delete %s: %w", full, err)))
			continue
		}
		evicted++
	}

	m.statsMu.Lock()
	m.evictions += int64(evicted)
	m.statsMu.Unlock()

	if evicted > 0 {
		m.log.Info("swept expired cache entries", zap.Int("evicted", evicted))
	}
	return evicted, errs
}

// Stats returns read statistics since the manager was created.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	stats := Stats{
		HitCount:  m.hitCount,
		MissCount: m.missCount,
		Evictions: m.evictions,
	}
	if total := stats.HitCount + stats.MissCount; total > 0 {
		stats.HitRate = float64(stats.HitCount) / float64(total)
	}
	return stats
}

func (m *Manager) evict(ctx context.Context, key, reason string) {
	// Eviction failures never surface; the next read evicts again.
	if err := m.store.Delete(ctx, m.Key(key)); err != nil {
		m.log.Debug("cache evict failed", zap.String("key", key), zap.Error(err))
		return
	}
	m.log.Debug("cache entry evicted", zap.String("key", key), zap.String("reason", reason))

	m.statsMu.Lock()
	m.evictions++
	m.statsMu.Unlock()
}

func (m *Manager) recordHit() {
	m.statsMu.Lock()
	m.hitCount++
	m.statsMu.Unlock()
}

func (m *Manager) recordMiss() {
	m.statsMu.Lock()
	m.missCount++
	m.statsMu.Unlock()
}
