package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/artpar/cardsync/internal/cache"
	"github.com/artpar/cardsync/internal/core"
	"github.com/artpar/cardsync/internal/kv"
	"github.com/artpar/cardsync/internal/ledger"
	"github.com/artpar/cardsync/internal/remote"
	"github.com/artpar/cardsync/internal/session"
)

type reply struct {
	res *remote.Result
	err error
}

type pendingCall struct {
	req   *remote.Request
	reply chan reply
}

func (p *pendingCall) respond(res *remote.Result, err error) {
	p.reply <- reply{res: res, err: err}
}

// fakeRemote answers through handler when set. Otherwise every call blocks
// until the test responds to it.
type fakeRemote struct {
	handler func(*remote.Request) (*remote.Result, error)
	calls   chan *pendingCall

	mu    sync.Mutex
	count int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{calls: make(chan *pendingCall, 16)}
}

func (f *fakeRemote) Do(_ context.Context, req *remote.Request) (*remote.Result, error) {
	f.mu.Lock()
	f.count++
	handler := f.handler
	f.mu.Unlock()

	if handler != nil {
		return handler(req)
	}
	p := &pendingCall{req: req, reply: make(chan reply, 1)}
	f.calls <- p
	r := <-p.reply
	return r.res, r.err
}

func (f *fakeRemote) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case p := <-f.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("expected a remote call")
		return nil
	}
}

func (f *fakeRemote) calledTimes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type fakeSession struct {
	mu    sync.Mutex
	token string
}

func (s *fakeSession) Current() core.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Session{Token: s.token}
}

func (s *fakeSession) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

type fixture struct {
	c       *Coordinator
	remote  *fakeRemote
	session *fakeSession
	store   *cache.Manager
}

func newFixture(t *testing.T, signedIn bool, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		remote:  newFakeRemote(),
		session: &fakeSession{},
		store:   cache.New(kv.NewMemory(), "test", cache.WithLogger(zap.NewNop())),
	}
	if signedIn {
		f.session.set("tok")
	}
	f.c = New(f.remote, f.session, f.store, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	return f
}

// seed writes a durable ledger snapshot and loads it.
func (f *fixture) seed(t *testing.T, records ...core.LedgerRecord) {
	t.Helper()
	require.True(t, f.store.Set(context.Background(), ledger.SnapshotKey, records, 0))
	f.c.Load(context.Background())
}

func (f *fixture) durableIDs() []string {
	var records []core.LedgerRecord
	if !f.store.Get(context.Background(), ledger.SnapshotKey, &records) {
		return nil
	}
	return recordIDs(records)
}

func recordIDs(records []core.LedgerRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	return out
}

func okResult(data string) *remote.Result {
	return &remote.Result{OK: true, StatusCode: http.StatusOK, Data: json.RawMessage(data)}
}

func failResult(message string) *remote.Result {
	return &remote.Result{StatusCode: http.StatusInternalServerError, Message: message}
}

func wait(t *testing.T, m *Mutation) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	o, err := m.Wait(ctx)
	require.NoError(t, err)
	return o
}

func card(id string) core.Entity {
	return core.Entity{ID: id, Content: "card " + id, Kind: core.KindPoetry}
}

func TestToggle_UnloadedEntity(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.c.ToggleFavorite(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrInvalidState)

	_, err = f.c.ToggleLike(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrInvalidState)

	assert.Zero(t, f.remote.calledTimes())
	assert.Equal(t, Idle, f.c.State("missing", OpFavorite))
}

func TestToggleFavorite_Commit(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	e := card("7")
	e.Favorites = 3
	f.c.Track(e)

	var events []State
	f.c.OnChange(func(_ core.Entity, s State) { events = append(events, s) })

	m, err := f.c.ToggleFavorite(ctx, "7")
	require.NoError(t, err)

	// Tentative change is visible before the remote call completes
	visible, _ := f.c.Entity("7")
	assert.True(t, visible.IsFavorited)
	assert.Equal(t, int64(4), visible.Favorites)
	assert.Equal(t, visible, m.Tentative)
	assert.Equal(t, []string{"7"}, recordIDs(f.c.ListFavorites(ledger.Filter{})))
	assert.Equal(t, Pending, f.c.State("7", OpFavorite))
	assert.Equal(t, []State{Pending}, events)
	assert.Nil(t, f.durableIDs(), "nothing is persisted before commit")

	call := f.remote.next(t)
	assert.Equal(t, http.MethodPost, call.req.Method)
	assert.Equal(t, "/cards/7/favorite", call.req.Path)
	call.respond(okResult(`null`), nil)

	o := wait(t, m)
	assert.Equal(t, Committed, o.State)
	assert.NoError(t, o.Err)
	assert.False(t, o.Local)
	assert.Equal(t, uint64(1), o.Generation)
	assert.Equal(t, []string{"7"}, f.durableIDs())
	assert.Equal(t, Committed, f.c.State("7", OpFavorite))

	var cached core.Entity
	require.True(t, f.store.Get(ctx, "cache/entity/7", &cached))
	assert.True(t, cached.IsFavorited)
}

func TestToggleFavorite_RollbackIsExact(t *testing.T) {
	t.Run("failed add", func(t *testing.T) {
		f := newFixture(t, true)
		e := card("7")
		e.Favorites = 3
		e.Likes = 5
		f.c.Track(e)
		before := f.c.ListFavorites(ledger.Filter{})

		m, err := f.c.ToggleFavorite(context.Background(), "7")
		require.NoError(t, err)
		f.remote.next(t).respond(failResult("card not found"), nil)

		o := wait(t, m)
		assert.Equal(t, RolledBack, o.State)
		assert.ErrorIs(t, o.Err, core.ErrServerLogic)
		assert.EqualError(t, o.Err, "card not found")

		after, _ := f.c.Entity("7")
		assert.Equal(t, e, after)
		assert.Equal(t, e, o.Entity)
		assert.Equal(t, before, f.c.ListFavorites(ledger.Filter{}))
		assert.Nil(t, f.durableIDs(), "rollback does not persist")
	})

	t.Run("failed remove restores position and timestamp", func(t *testing.T) {
		f := newFixture(t, true)
		at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		records := []core.LedgerRecord{
			{Entity: card("1"), FavoritedAt: at},
			{Entity: card("2"), FavoritedAt: at.Add(time.Hour)},
			{Entity: card("3"), FavoritedAt: at.Add(2 * time.Hour)},
		}
		f.seed(t, records...)
		loaded := card("2")
		loaded.IsFavorited = true
		loaded.Favorites = 1
		f.c.Track(loaded)
		before := f.c.ListFavorites(ledger.Filter{})

		m, err := f.c.ToggleFavorite(context.Background(), "2")
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "3"}, recordIDs(f.c.ListFavorites(ledger.Filter{})))

		call := f.remote.next(t)
		assert.Equal(t, http.MethodDelete, call.req.Method)
		call.respond(nil, core.Transport(nil))

		o := wait(t, m)
		assert.Equal(t, RolledBack, o.State)
		assert.ErrorIs(t, o.Err, core.ErrTransport)

		after, _ := f.c.Entity("2")
		assert.Equal(t, loaded, after)
		assert.Equal(t, before, f.c.ListFavorites(ledger.Filter{}))
		assert.Equal(t, []string{"1", "2", "3"}, f.durableIDs())
	})
}

func TestToggle_StaleResultIsDiscarded(t *testing.T) {
	t.Run("older failure after newer success", func(t *testing.T) {
		f := newFixture(t, true)
		f.c.Track(card("7"))
		ctx := context.Background()

		first, err := f.c.ToggleFavorite(ctx, "7")
		require.NoError(t, err)
		second, err := f.c.ToggleFavorite(ctx, "7")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), f.c.Generation("7", OpFavorite))

		calls := map[string]*pendingCall{}
		for i := 0; i < 2; i++ {
			p := f.remote.next(t)
			calls[p.req.Method] = p
		}

		calls[http.MethodDelete].respond(okResult(`null`), nil)
		assert.Equal(t, Committed, wait(t, second).State)

		calls[http.MethodPost].respond(failResult("boom"), nil)
		o := wait(t, first)
		assert.Equal(t, Superseded, o.State)
		assert.NoError(t, o.Err)

		e, _ := f.c.Entity("7")
		assert.False(t, e.IsFavorited)
		assert.Zero(t, e.Favorites)
		assert.Equal(t, Committed, f.c.State("7", OpFavorite))
		assert.Empty(t, f.c.ListFavorites(ledger.Filter{}))
	})

	t.Run("older success does not persist", func(t *testing.T) {
		f := newFixture(t, true)
		f.c.Track(card("7"))
		ctx := context.Background()

		first, _ := f.c.ToggleFavorite(ctx, "7")
		second, _ := f.c.ToggleFavorite(ctx, "7")

		calls := map[string]*pendingCall{}
		for i := 0; i < 2; i++ {
			p := f.remote.next(t)
			calls[p.req.Method] = p
		}

		calls[http.MethodPost].respond(okResult(`null`), nil)
		assert.Equal(t, Superseded, wait(t, first).State)
		assert.Nil(t, f.durableIDs())
		assert.Equal(t, Pending, f.c.State("7", OpFavorite))

		calls[http.MethodDelete].respond(failResult("boom"), nil)
		o := wait(t, second)
		assert.Equal(t, RolledBack, o.State)

		// Rolls back to the state before the second toggle
		e, _ := f.c.Entity("7")
		assert.True(t, e.IsFavorited)
		assert.Equal(t, []string{"7"}, recordIDs(f.c.ListFavorites(ledger.Filter{})))
	})
}

func TestToggle_AuthorizationFailureRollsBack(t *testing.T) {
	fake := newFakeRemote()
	store := cache.New(kv.NewMemory(), "test", cache.WithLogger(zap.NewNop()))
	guard := session.New(fake, store, session.WithLogger(zap.NewNop()))
	ctx := context.Background()
	guard.SetToken(ctx, "tok")

	c := New(guard, guard, store, WithLogger(zap.NewNop()))
	c.Track(card("7"))

	m, err := c.ToggleFavorite(ctx, "7")
	require.NoError(t, err)

	call := fake.next(t)
	assert.Equal(t, "Bearer tok", call.req.Authorization())
	call.respond(&remote.Result{AuthExpired: true, StatusCode: http.StatusUnauthorized, Message: "token expired"}, nil)

	o := wait(t, m)
	assert.Equal(t, RolledBack, o.State)
	assert.ErrorIs(t, o.Err, core.ErrAuthorization)
	assert.True(t, guard.RequiresReauth())
	assert.False(t, guard.Current().Active())

	e, _ := c.Entity("7")
	assert.False(t, e.IsFavorited)
}

func TestToggle_OfflineCommitsLocally(t *testing.T) {
	f := newFixture(t, false)
	f.c.Track(card("7"))

	m, err := f.c.ToggleFavorite(context.Background(), "7")
	require.NoError(t, err)

	select {
	case <-m.Done():
	default:
		t.Fatal("local mutation should be finished on return")
	}
	o := wait(t, m)
	assert.Equal(t, Committed, o.State)
	assert.True(t, o.Local)
	assert.Equal(t, []string{"7"}, f.durableIDs())
	assert.Zero(t, f.remote.calledTimes())
}

func TestToggle_OfflineDisabledGoesRemote(t *testing.T) {
	settings := DefaultSettings()
	settings.OfflineToggles = false
	f := newFixture(t, false, WithSettings(settings))
	f.c.Track(card("7"))

	m, err := f.c.ToggleFavorite(context.Background(), "7")
	require.NoError(t, err)

	f.remote.next(t).respond(&remote.Result{AuthExpired: true, StatusCode: http.StatusUnauthorized}, nil)
	o := wait(t, m)
	assert.Equal(t, RolledBack, o.State)
	assert.ErrorIs(t, o.Err, core.ErrAuthorization)
}

func TestToggleLike(t *testing.T) {
	t.Run("server count wins on commit", func(t *testing.T) {
		f := newFixture(t, true)
		e := card("7")
		e.Likes = 10
		f.c.Track(e)

		m, err := f.c.ToggleLike(context.Background(), "7")
		require.NoError(t, err)
		assert.Equal(t, int64(11), m.Tentative.Likes)
		assert.True(t, m.Tentative.IsLiked)

		call := f.remote.next(t)
		assert.Equal(t, "/cards/7/like", call.req.Path)
		assert.Equal(t, map[string]string{"action": "like"}, call.req.Body)
		call.respond(okResult(`{"likes":42}`), nil)

		o := wait(t, m)
		assert.Equal(t, Committed, o.State)
		assert.Equal(t, int64(42), o.Entity.Likes)
	})

	t.Run("missing count keeps optimistic value", func(t *testing.T) {
		f := newFixture(t, true)
		f.c.Track(card("7"))

		m, _ := f.c.ToggleLike(context.Background(), "7")
		f.remote.next(t).respond(okResult(`{}`), nil)

		o := wait(t, m)
		assert.Equal(t, int64(1), o.Entity.Likes)
	})

	t.Run("rollback restores counter verbatim", func(t *testing.T) {
		f := newFixture(t, true)
		e := card("7")
		e.IsLiked = true
		f.c.Track(e)

		m, _ := f.c.ToggleLike(context.Background(), "7")
		assert.Zero(t, m.Tentative.Likes, "counter is floored at zero")
		assert.False(t, m.Tentative.IsLiked)

		call := f.remote.next(t)
		assert.Equal(t, map[string]string{"action": "unlike"}, call.req.Body)
		call.respond(failResult("nope"), nil)

		o := wait(t, m)
		assert.Equal(t, RolledBack, o.State)
		after, _ := f.c.Entity("7")
		assert.Equal(t, e, after)
	})
}

func TestToggle_LikeAndFavoriteAreIndependent(t *testing.T) {
	f := newFixture(t, true)
	f.c.Track(card("7"))
	ctx := context.Background()

	fav, _ := f.c.ToggleFavorite(ctx, "7")
	like, _ := f.c.ToggleLike(ctx, "7")

	calls := map[string]*pendingCall{}
	for i := 0; i < 2; i++ {
		p := f.remote.next(t)
		calls[p.req.Path] = p
	}

	calls["/cards/7/like"].respond(failResult("boom"), nil)
	assert.Equal(t, RolledBack, wait(t, like).State)

	e, _ := f.c.Entity("7")
	assert.True(t, e.IsFavorited, "pending favorite survives the like rollback")
	assert.False(t, e.IsLiked)

	calls["/cards/7/favorite"].respond(okResult(`null`), nil)
	assert.Equal(t, Committed, wait(t, fav).State)
	e, _ = f.c.Entity("7")
	assert.True(t, e.IsFavorited)
}

func TestToggle_DifferentEntitiesAreIndependent(t *testing.T) {
	f := newFixture(t, true)
	f.c.Track(card("1"))
	f.c.Track(card("2"))
	ctx := context.Background()

	m1, _ := f.c.ToggleFavorite(ctx, "1")
	m2, _ := f.c.ToggleFavorite(ctx, "2")

	calls := map[string]*pendingCall{}
	for i := 0; i < 2; i++ {
		p := f.remote.next(t)
		calls[p.req.Path] = p
	}
	calls["/cards/2/favorite"].respond(okResult(`null`), nil)
	calls["/cards/1/favorite"].respond(failResult("boom"), nil)

	assert.Equal(t, RolledBack, wait(t, m1).State)
	assert.Equal(t, Committed, wait(t, m2).State)
	assert.Equal(t, []string{"2"}, recordIDs(f.c.ListFavorites(ledger.Filter{})))
	assert.Equal(t, []string{"2"}, f.durableIDs())
}

func TestToggle_RollbackIsLogged(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	f := newFixture(t, true, WithLogger(zap.New(obs)))
	f.c.Track(card("7"))

	m, _ := f.c.ToggleFavorite(context.Background(), "7")
	f.remote.next(t).respond(failResult("boom"), nil)
	wait(t, m)

	entries := logs.FilterMessage("mutation rolled back").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "7", entries[0].ContextMap()["id"])
}

func TestDailyEntity(t *testing.T) {
	t.Run("default without session or cache", func(t *testing.T) {
		f := newFixture(t, false)
		e := f.c.DailyEntity(context.Background())
		assert.Equal(t, core.DefaultEntity.ID, e.ID)
		assert.Zero(t, f.remote.calledTimes())

		_, err := f.c.ToggleFavorite(context.Background(), e.ID)
		assert.NoError(t, err, "daily card is loaded")
	})

	t.Run("remote result is cached", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.handler = func(req *remote.Request) (*remote.Result, error) {
			assert.Equal(t, "/cards/daily", req.Path)
			return okResult(`{"id":12,"content":"today","likes":4}`), nil
		}
		ctx := context.Background()

		e := f.c.DailyEntity(ctx)
		assert.Equal(t, "12", e.ID)
		assert.Equal(t, int64(4), e.Likes)

		var cached core.Entity
		require.True(t, f.store.Get(ctx, dailyKey, &cached))
		assert.Equal(t, "today", cached.Content)

		// Second instance reads the cache without a remote call
		other := New(f.remote, f.session, f.store, WithLogger(zap.NewNop()))
		calls := f.remote.calledTimes()
		assert.Equal(t, "12", other.DailyEntity(ctx).ID)
		assert.Equal(t, calls, f.remote.calledTimes())
	})

	t.Run("favorite flag comes from the ledger", func(t *testing.T) {
		f := newFixture(t, false)
		f.seed(t, core.LedgerRecord{Entity: core.DefaultEntity})

		assert.True(t, f.c.DailyEntity(context.Background()).IsFavorited)
	})

	t.Run("remote failure falls back to default", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.handler = func(*remote.Request) (*remote.Result, error) {
			return nil, core.Transport(nil)
		}
		assert.Equal(t, core.DefaultEntity.ID, f.c.DailyEntity(context.Background()).ID)
	})
}

func TestRefreshDailyEntity(t *testing.T) {
	t.Run("rotates fallbacks without session", func(t *testing.T) {
		f := newFixture(t, false)
		ctx := context.Background()

		first := f.c.RefreshDailyEntity(ctx)
		second := f.c.RefreshDailyEntity(ctx)
		assert.Equal(t, core.Fallback(0).ID, first.ID)
		assert.Equal(t, core.Fallback(1).ID, second.ID)
		assert.Equal(t, second.ID, f.c.DailyEntity(ctx).ID)
		assert.Zero(t, f.remote.calledTimes())
	})

	t.Run("generates the configured kind", func(t *testing.T) {
		settings := DefaultSettings()
		settings.CardKind = core.KindPoetry
		f := newFixture(t, true, WithSettings(settings))
		f.remote.handler = func(req *remote.Request) (*remote.Result, error) {
			assert.Equal(t, "/cards/generate", req.Path)
			assert.Equal(t, map[string]string{"type": "poetry"}, req.Body)
			return okResult(`{"id":"g1","content":"new","type":"poetry"}`), nil
		}

		e := f.c.RefreshDailyEntity(context.Background())
		assert.Equal(t, "g1", e.ID)
	})

	t.Run("failure never surfaces", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.handler = func(*remote.Request) (*remote.Result, error) {
			return failResult("quota exceeded"), nil
		}
		e := f.c.RefreshDailyEntity(context.Background())
		assert.Equal(t, core.Fallback(0).ID, e.ID)
	})
}

func TestLoadEntity(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.remote.handler = func(req *remote.Request) (*remote.Result, error) {
		if req.Path == "/cards/5" {
			return okResult(`{"id":5,"content":"five"}`), nil
		}
		return &remote.Result{StatusCode: http.StatusNotFound, Message: "Not Found"}, nil
	}

	e, err := f.c.LoadEntity(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "five", e.Content)

	_, err = f.c.ToggleLike(ctx, "5")
	assert.NoError(t, err)

	_, err = f.c.LoadEntity(ctx, "6")
	assert.ErrorIs(t, err, core.ErrServerLogic)

	f.seed(t, core.LedgerRecord{Entity: card("6")})
	e, err = f.c.LoadEntity(ctx, "6")
	require.NoError(t, err)
	assert.True(t, e.IsFavorited)
}

func TestSyncFavorites(t *testing.T) {
	t.Run("requires a session", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.c.SyncFavorites(context.Background())
		assert.ErrorIs(t, err, core.ErrAuthorization)
	})

	t.Run("replaces ledger with server list", func(t *testing.T) {
		at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		f := newFixture(t, true)
		f.seed(t,
			core.LedgerRecord{Entity: card("1"), FavoritedAt: at},
			core.LedgerRecord{Entity: card("stale"), FavoritedAt: at},
		)
		stale := card("stale")
		stale.IsFavorited = true
		f.c.Track(stale)

		f.remote.handler = func(req *remote.Request) (*remote.Result, error) {
			return okResult(`[{"id":3,"content":"three","favorites":2},{"id":1,"content":"one"}]`), nil
		}

		n, err := f.c.SyncFavorites(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"1", "3"}, recordIDs(f.c.ListFavorites(ledger.Filter{})))
		assert.Equal(t, []string{"1", "3"}, f.durableIDs())

		r, _ := f.c.durable.Get("1")
		assert.True(t, at.Equal(r.FavoritedAt), "existing records keep their timestamp")

		e, _ := f.c.Entity("stale")
		assert.False(t, e.IsFavorited)
	})

	t.Run("pending mutations keep local state", func(t *testing.T) {
		f := newFixture(t, true)
		f.c.Track(card("9"))
		m, _ := f.c.ToggleFavorite(context.Background(), "9")
		call := f.remote.next(t)

		f.remote.mu.Lock()
		f.remote.handler = func(*remote.Request) (*remote.Result, error) {
			return okResult(`[{"id":1,"content":"one"}]`), nil
		}
		f.remote.mu.Unlock()

		_, err := f.c.SyncFavorites(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "9"}, recordIDs(f.c.ListFavorites(ledger.Filter{})))
		assert.Equal(t, []string{"1"}, f.durableIDs())

		call.respond(okResult(`null`), nil)
		assert.Equal(t, Committed, wait(t, m).State)
		assert.Equal(t, []string{"1", "9"}, f.durableIDs())
	})
}

func TestDrainWaitsForInflight(t *testing.T) {
	f := newFixture(t, true)
	f.c.Track(card("7"))
	m, _ := f.c.ToggleFavorite(context.Background(), "7")
	call := f.remote.next(t)

	drained := make(chan struct{})
	go func() {
		f.c.Drain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("drain returned with a call in flight")
	case <-time.After(20 * time.Millisecond):
	}

	call.respond(okResult(`null`), nil)
	<-drained
	assert.Equal(t, Committed, wait(t, m).State)
}

func TestNew_DefaultClock(t *testing.T) {
	f := newFixture(t, true)
	f.remote.handler = func(*remote.Request) (*remote.Result, error) {
		return okResult(`[{"id":1,"content":"one"}]`), nil
	}

	before := time.Now()
	_, err := f.c.SyncFavorites(context.Background())
	require.NoError(t, err)

	r, ok := f.c.durable.Get("1")
	require.True(t, ok)
	assert.False(t, r.FavoritedAt.Before(before))
}

func TestNew_ClockReachesLedgers(t *testing.T) {
	at := time.Date(2025, 9, 7, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, false, WithClock(func() time.Time { return at }))
	f.c.Track(card("7"))

	m, err := f.c.ToggleFavorite(context.Background(), "7")
	require.NoError(t, err)
	require.Equal(t, Committed, wait(t, m).State)

	records := f.c.ListFavorites(ledger.Filter{})
	require.Len(t, records, 1)
	assert.True(t, at.Equal(records[0].FavoritedAt))

	r, ok := f.c.durable.Get("7")
	require.True(t, ok)
	assert.True(t, at.Equal(r.FavoritedAt))
}

func TestHistory(t *testing.T) {
	t.Run("requires a session when not cached", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.c.History(context.Background(), 1, "")
		assert.ErrorIs(t, err, core.ErrAuthorization)
		assert.Zero(t, f.remote.calledTimes())
	})

	t.Run("fetches, caches and registers cards", func(t *testing.T) {
		f := newFixture(t, true)
		f.seed(t, core.LedgerRecord{Entity: card("4")})
		f.remote.handler = func(req *remote.Request) (*remote.Result, error) {
			assert.Equal(t, "/cards/history?limit=20&page=2&type=poetry", req.Path)
			return okResult(`[{"id":9,"content":"nine","type":"poetry"},{"id":4,"content":"four","type":"poetry"}]`), nil
		}
		ctx := context.Background()

		cards, err := f.c.History(ctx, 2, core.KindPoetry)
		require.NoError(t, err)
		require.Len(t, cards, 2)
		assert.Equal(t, "9", cards[0].ID)
		assert.False(t, cards[0].IsFavorited)
		assert.True(t, cards[1].IsFavorited, "favorite flag comes from the ledger")

		f.remote.mu.Lock()
		f.remote.handler = nil
		f.remote.mu.Unlock()

		_, err = f.c.ToggleFavorite(ctx, "9")
		assert.NoError(t, err, "history cards are loaded")
		f.remote.next(t).respond(okResult(`null`), nil)
		f.c.Drain()

		var cached core.Entity
		assert.True(t, f.store.Get(ctx, "cache/entity/4", &cached))
	})

	t.Run("cached page is served without a session", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.handler = func(*remote.Request) (*remote.Result, error) {
			return okResult(`[{"id":9,"content":"nine"}]`), nil
		}
		ctx := context.Background()

		_, err := f.c.History(ctx, 1, "")
		require.NoError(t, err)
		calls := f.remote.calledTimes()

		other := New(f.remote, &fakeSession{}, f.store, WithLogger(zap.NewNop()))
		cards, err := other.History(ctx, 1, "")
		require.NoError(t, err)
		require.Len(t, cards, 1)
		assert.Equal(t, "nine", cards[0].Content)
		assert.Equal(t, calls, f.remote.calledTimes())

		_, err = other.History(ctx, 2, "")
		assert.ErrorIs(t, err, core.ErrAuthorization, "other pages are not cached")
	})

	t.Run("remote failure surfaces", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.handler = func(*remote.Request) (*remote.Result, error) {
			return nil, core.Transport(nil)
		}
		_, err := f.c.History(context.Background(), 1, "")
		assert.ErrorIs(t, err, core.ErrTransport)
	})
}
