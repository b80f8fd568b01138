package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/artpar/cardsync/internal/cache"
	"github.com/artpar/cardsync/internal/config"
	"github.com/artpar/cardsync/internal/coordinator"
	"github.com/artpar/cardsync/internal/core"
	"github.com/artpar/cardsync/internal/kv"
	"github.com/artpar/cardsync/internal/kv/sqlite"
	"github.com/artpar/cardsync/internal/ledger"
	"github.com/artpar/cardsync/internal/logger"
	"github.com/artpar/cardsync/internal/remote"
	"github.com/artpar/cardsync/internal/session"
)

// App is the application container. It owns the persistent store and wires
// the cache, session guard, remote client and mutation coordinator.
type App struct {
	config config.Config
	log    *zap.Logger

	store       kv.Store
	cache       *cache.Manager
	client      *remote.Client
	guard       *session.Guard
	coordinator *coordinator.Coordinator

	transport http.RoundTripper
}

// Option is a function that configures the App.
type Option func(*App)

// WithStore uses store instead of opening the sqlite database under the
// configured data directory. The App takes ownership of store.
func WithStore(store kv.Store) Option {
	return func(a *App) {
		a.store = store
	}
}

// WithTransport sets the HTTP transport of the remote client.
func WithTransport(transport http.RoundTripper) Option {
	return func(a *App) {
		a.transport = transport
	}
}

// WithLogger sets the logger passed to every component.
func WithLogger(log *zap.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

// New creates an App for cfg. It restores the persisted session and
// favorites ledger and, when configured, sweeps expired cache entries.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Logger()
	}

	if a.store == nil {
		store, err := sqlite.New(cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = store
	}

	a.cache = cache.New(a.store, cfg.Storage.Namespace, cache.WithLogger(a.log.With(zap.String("module", "cache"))))

	clientOpts := []remote.Option{
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithLogger(a.log.With(zap.String("module", "remote"))),
	}
	if a.transport != nil {
		clientOpts = append(clientOpts, remote.WithTransport(a.transport))
	}
	a.client = remote.NewClient(cfg.Remote.BaseURL, clientOpts...)

	a.guard = session.New(a.client, a.cache, session.WithLogger(a.log.With(zap.String("module", "session"))))
	a.guard.OnInvalidate(func() {
		a.log.Info("session expired, sign in again")
	})

	a.coordinator = coordinator.New(a.guard, a.guard, a.cache,
		coordinator.WithLogger(a.log.With(zap.String("module", "coordinator"))),
		coordinator.WithSettings(coordinator.Settings{
			CardKind:       cfg.Sync.CardKind,
			CacheTTL:       cfg.Cache.TTL,
			OfflineToggles: cfg.Sync.OfflineToggles,
		}),
	)

	if cfg.Cache.SweepOnStart {
		if _, err := a.Sweep(ctx); err != nil {
			a.log.Warn("cache sweep incomplete", zap.Error(err))
		}
	}
	a.guard.Restore(ctx)
	a.coordinator.Load(ctx)

	return a, nil
}

// Config returns the application configuration.
func (a *App) Config() config.Config {
	return a.config
}

// Coordinator returns the mutation coordinator.
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coordinator
}

// DailyEntity returns today's card.
func (a *App) DailyEntity(ctx context.Context) core.Entity {
	return a.coordinator.DailyEntity(ctx)
}

// RefreshDailyEntity replaces today's card with a newly generated one.
func (a *App) RefreshDailyEntity(ctx context.Context) core.Entity {
	return a.coordinator.RefreshDailyEntity(ctx)
}

// LoadEntity loads a card by id so it can be toggled.
func (a *App) LoadEntity(ctx context.Context, id string) (core.Entity, error) {
	return a.coordinator.LoadEntity(ctx, id)
}

// ToggleFavorite flips the favorite flag of a loaded card.
func (a *App) ToggleFavorite(ctx context.Context, id string) (*coordinator.Mutation, error) {
	return a.coordinator.ToggleFavorite(ctx, id)
}

// ToggleLike flips the like flag of a loaded card.
func (a *App) ToggleLike(ctx context.Context, id string) (*coordinator.Mutation, error) {
	return a.coordinator.ToggleLike(ctx, id)
}

// ListFavorites returns the favorites matching f.
func (a *App) ListFavorites(f ledger.Filter) []core.LedgerRecord {
	return a.coordinator.ListFavorites(f)
}

// SyncFavorites replaces the local favorites with the server's list.
func (a *App) SyncFavorites(ctx context.Context) (int, error) {
	return a.coordinator.SyncFavorites(ctx)
}

// History returns one page of previously generated cards, newest first.
func (a *App) History(ctx context.Context, page int, kind core.Kind) ([]core.Entity, error) {
	return a.coordinator.History(ctx, page, kind)
}

// CurrentSession returns the current session. It is anonymous when no token is held.
func (a *App) CurrentSession() core.Session {
	return a.guard.Current()
}

// RequiresReauth reports whether the last session was torn down by the server.
func (a *App) RequiresReauth() bool {
	return a.guard.RequiresReauth()
}

// Login exchanges a login code for a session.
func (a *App) Login(ctx context.Context, code string) (core.Session, error) {
	return a.guard.Login(ctx, code)
}

// Logout discards the session.
func (a *App) Logout(ctx context.Context) {
	a.guard.Logout(ctx)
}

// Sweep evicts expired cache entries and returns how many were removed.
func (a *App) Sweep(ctx context.Context) (int, error) {
	return a.cache.SweepExpired(ctx)
}

// CacheStats returns cache hit and miss counters.
func (a *App) CacheStats() cache.Stats {
	return a.cache.Stats()
}

// Close waits for in-flight mutations, then closes the store.
func (a *App) Close() error {
	a.coordinator.Drain()
	_ = a.log.Sync()
	return a.store.Close()
}
