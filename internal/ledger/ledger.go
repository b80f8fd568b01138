package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/artpar/cardsync/internal/cache"
	"github.com/artpar/cardsync/internal/core"
	"github.com/artpar/cardsync/internal/logger"
)

// SnapshotKey is the cache key of the durable ledger snapshot.
const SnapshotKey = "ledger"

// Filter selects ledger records. The zero value matches everything in
// insertion order, most recently favorited last.
type Filter struct {
	Kind      core.Kind
	Query     string
	Reverse   bool
	Predicate func(core.LedgerRecord) bool
}

func (f Filter) match(r core.LedgerRecord) bool {
	if f.Kind != "" && r.Entity.Kind != f.Kind {
		return false
	}
	if !r.Entity.Matches(f.Query) {
		return false
	}
	if f.Predicate != nil && !f.Predicate(r) {
		return false
	}
	return true
}

// Removal describes a removed record so it can be put back exactly where it was.
type Removal struct {
	Record core.LedgerRecord
	Index  int
	After  string
}

// Ledger is the ordered, deduplicated collection of favorited entities.
type Ledger struct {
	mu      sync.RWMutex
	records []core.LedgerRecord

	store *cache.Manager
	now   func() time.Time
	log   *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for FavoritedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) {
		l.log = log
	}
}

// New creates an empty ledger persisted through store. store may be nil for
// a memory-only ledger.
func New(store *cache.Manager, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.WithModule("ledger")
	}
	return l
}

func (l *Ledger) indexOf(id string) int {
	for i, r := range l.records {
		if r.Entity.ID == id {
			return i
		}
	}
	return -1
}

// Add records e as favorited. It is a no-op returning false if e is already present.
func (l *Ledger) Add(e core.Entity) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOf(e.ID) >= 0 {
		return false
	}
	e.IsFavorited = true
	l.records = append(l.records, core.LedgerRecord{Entity: e, FavoritedAt: l.now()})
	return true
}

// Put appends r unchanged, keeping its FavoritedAt. It is a no-op returning
// false if a record with the same id is already present.
func (l *Ledger) Put(r core.LedgerRecord) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOf(r.Entity.ID) >= 0 {
		return false
	}
	r.Entity.IsFavorited = true
	l.records = append(l.records, r)
	return true
}

// Remove deletes the record for id. It returns false if there was none.
func (l *Ledger) Remove(id string) (Removal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		return Removal{}, false
	}

	removal := Removal{Record: l.records[i], Index: i}
	if i > 0 {
		removal.After = l.records[i-1].Entity.ID
	}
	l.records = append(l.records[:i], l.records[i+1:]...)
	return removal, true
}

// Restore puts a removed record back at its previous position. It is a
// no-op if a record with the same id has been added since.
func (l *Ledger) Restore(r Removal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOf(r.Record.Entity.ID) >= 0 {
		return
	}

	pos := r.Index
	if r.After == "" {
		pos = 0
	} else if prev := l.indexOf(r.After); prev >= 0 {
		pos = prev + 1
	}
	if pos > len(l.records) {
		pos = len(l.records)
	}

	l.records = append(l.records, core.LedgerRecord{})
	copy(l.records[pos+1:], l.records[pos:])
	l.records[pos] = r.Record
}

// Replace refreshes the snapshot stored for e.ID, keeping its position and
// FavoritedAt. It returns false if e is not in the ledger.
func (l *Ledger) Replace(e core.Entity) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(e.ID)
	if i < 0 {
		return false
	}
	e.IsFavorited = true
	l.records[i].Entity = e
	return true
}

// Contains reports whether id is in the ledger.
func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexOf(id) >= 0
}

// Get returns the record for id.
func (l *Ledger) Get(id string) (core.LedgerRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i := l.indexOf(id); i >= 0 {
		return l.records[i], true
	}
	return core.LedgerRecord{}, false
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// List returns the records matching f.
func (l *Ledger) List(f Filter) []core.LedgerRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]core.LedgerRecord, 0, len(l.records))
	for _, r := range l.records {
		if f.match(r) {
			out = append(out, r)
		}
	}
	if f.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Snapshot returns a copy of all records in order.
func (l *Ledger) Snapshot() []core.LedgerRecord {
	return l.List(Filter{})
}

// Reset replaces the ledger contents, dropping duplicate ids after the first.
func (l *Ledger) Reset(records []core.LedgerRecord) {
	seen := make(map[string]struct{}, len(records))
	out := make([]core.LedgerRecord, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.Entity.ID]; dup || r.Entity.ID == "" {
			continue
		}
		seen[r.Entity.ID] = struct{}{}
		r.Entity.IsFavorited = true
		out = append(out, r)
	}

	l.mu.Lock()
	l.records = out
	l.mu.Unlock()
}

// Load replaces the in-memory ledger with the durable snapshot. It returns
// false when there is no snapshot.
func (l *Ledger) Load(ctx context.Context) bool {
	if l.store == nil {
		return false
	}
	var records []core.LedgerRecord
	if !l.store.Get(ctx, SnapshotKey, &records) {
		return false
	}
	l.Reset(records)
	return true
}

// Persist writes the current ledger as the durable snapshot. A failed write
// is logged and reported as false; the in-memory ledger stays authoritative.
func (l *Ledger) Persist(ctx context.Context) bool {
	if l.store == nil {
		return false
	}
	if !l.store.Set(ctx, SnapshotKey, l.Snapshot(), 0) {
		l.log.Warn("ledger snapshot not persisted", zap.Error(core.ErrLocalStorage))
		return false
	}
	return true
}
