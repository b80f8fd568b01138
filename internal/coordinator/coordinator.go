package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/artpar/cardsync/internal/cache"
	"github.com/artpar/cardsync/internal/core"
	"github.com/artpar/cardsync/internal/ledger"
	"github.com/artpar/cardsync/internal/logger"
	"github.com/artpar/cardsync/internal/remote"
)

const (
	dailyKey     = "cache/daily"
	entityPrefix = "cache/entity/"
)

// Sessions reports the current session.
type Sessions interface {
	Current() core.Session
}

// Listener is notified whenever the visible copy of an entity changes.
type Listener func(e core.Entity, state State)

// Settings holds the coordinator's tunables.
type Settings struct {
	CardKind       core.Kind
	CacheTTL       time.Duration
	OfflineToggles bool
}

// DefaultSettings returns the default settings.
func DefaultSettings() Settings {
	return Settings{
		CardKind:       core.KindInspirational,
		CacheTTL:       time.Hour,
		OfflineToggles: true,
	}
}

type ticketKey struct {
	id string
	op Op
}

// Coordinator applies optimistic mutations to loaded entities and the
// favorites ledger, confirms them remotely and rolls them back on failure.
//
// All in-memory state is guarded by one mutex, which stands in for the
// single UI thread: optimistic changes are applied before a toggle returns,
// remote results are applied in completion order, and a per-entity
// generation ticket discards results that a newer mutation has superseded.
type Coordinator struct {
	api      *remote.API
	sessions Sessions
	cache    *cache.Manager
	settings Settings
	now      func() time.Time
	log      *zap.Logger

	// visible holds optimistic state; durable holds only committed state
	// and is the one written to the persistent store.
	visible *ledger.Ledger
	durable *ledger.Ledger

	mu        sync.Mutex
	entities  map[string]core.Entity
	tickets   map[ticketKey]uint64
	states    map[ticketKey]State
	dailyID   string
	refreshes int
	listeners []Listener

	inflight sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSettings overrides the default settings.
func WithSettings(s Settings) Option {
	return func(c *Coordinator) {
		c.settings = s
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithClock sets the clock used for ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates a Coordinator. Requests go through doer, which is normally
// the session guard; store is the only path to persistent storage.
func New(doer remote.Doer, sessions Sessions, store *cache.Manager, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:      remote.NewAPI(doer),
		sessions: sessions,
		cache:    store,
		settings: DefaultSettings(),
		now:      time.Now,
		log:      logger.WithModule("coordinator"),
		entities: make(map[string]core.Entity),
		tickets:  make(map[ticketKey]uint64),
		states:   make(map[ticketKey]State),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.visible = ledger.New(nil, ledger.WithClock(c.now), ledger.WithLogger(c.log))
	c.durable = ledger.New(store, ledger.WithClock(c.now), ledger.WithLogger(c.log))
	return c
}

// Load restores the favorites ledger from the persistent store.
func (c *Coordinator) Load(ctx context.Context) {
	if c.durable.Load(ctx) {
		c.visible.Reset(c.durable.Snapshot())
		c.log.Debug("ledger loaded", zap.Int("records", c.visible.Len()))
	}
}

// OnChange registers a listener for visible entity changes.
func (c *Coordinator) OnChange(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Track registers e as the loaded copy for its id. An entity with a pending
// mutation keeps its optimistic fields.
func (c *Coordinator) Track(e core.Entity) core.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackLocked(e)
}

func (c *Coordinator) trackLocked(e core.Entity) core.Entity {
	if cur, ok := c.entities[e.ID]; ok {
		e = core.Merge(cur, e)
		if c.states[ticketKey{e.ID, OpFavorite}] == Pending {
			e.IsFavorited = cur.IsFavorited
			e.Favorites = cur.Favorites
		}
		if c.states[ticketKey{e.ID, OpLike}] == Pending {
			e.IsLiked = cur.IsLiked
			e.Likes = cur.Likes
		}
	}
	c.entities[e.ID] = e
	c.visible.Replace(e)
	return e
}

// Entity returns the loaded copy of id.
func (c *Coordinator) Entity(id string) (core.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entities[id]
	return e, ok
}

// State returns the state of the latest op mutation on id.
func (c *Coordinator) State(id string, op Op) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[ticketKey{id, op}]
}

// Generation returns the current op ticket for id.
func (c *Coordinator) Generation(id string, op Op) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickets[ticketKey{id, op}]
}

// Drain waits for every in-flight remote call to be applied.
func (c *Coordinator) Drain() {
	c.inflight.Wait()
}

func (c *Coordinator) notify(e core.Entity, state State) {
	c.mu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(e, state)
	}
}

// cacheEntityLocked writes e to the entity cache, and to the daily cache
// when e is the daily card.
func (c *Coordinator) cacheEntityLocked(ctx context.Context, e core.Entity) {
	if c.cache == nil {
		return
	}
	c.cache.Set(ctx, entityPrefix+e.ID, e, c.settings.CacheTTL)
	if e.ID == c.dailyID {
		c.cache.Set(ctx, dailyKey, e, c.settings.CacheTTL)
	}
}

func (c *Coordinator) cached(ctx context.Context, key string) (core.Entity, bool) {
	var e core.Entity
	if c.cache == nil || !c.cache.Get(ctx, key, &e) || e.ID == "" {
		return core.Entity{}, false
	}
	return e, true
}

func (c *Coordinator) hasSession() bool {
	return c.sessions != nil && c.sessions.Current().Active()
}
