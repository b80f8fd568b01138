package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/artpar/cardsync/internal/cache"
	"github.com/artpar/cardsync/internal/core"
	"github.com/artpar/cardsync/internal/logger"
	"github.com/artpar/cardsync/internal/remote"
)

const (
	tokenKey  = "session/token"
	reauthKey = "session/reauth"
)

// Guard holds the bearer token, attaches it to outgoing requests and tears
// the session down when the backend reports an authorization failure.
// It never retries and never blocks anonymous requests.
type Guard struct {
	next  remote.Doer
	cache *cache.Manager
	log   *zap.Logger

	mu             sync.Mutex
	token          string
	requiresReauth bool
	listeners      []func()
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(g *Guard) {
		g.log = log
	}
}

// New creates a Guard that forwards requests to next and keeps the token
// durable through store. store may be nil for a memory-only session.
func New(next remote.Doer, store *cache.Manager, opts ...Option) *Guard {
	g := &Guard{
		next:  next,
		cache: store,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = logger.WithModule("session")
	}
	return g
}

// Restore loads a previously persisted token, or the re-authentication flag
// left by a torn-down session. It returns true if a token was found.
func (g *Guard) Restore(ctx context.Context) bool {
	if g.cache == nil {
		return false
	}
	var token string
	if !g.cache.Get(ctx, tokenKey, &token) || token == "" {
		var reauth bool
		if g.cache.Get(ctx, reauthKey, &reauth) {
			g.mu.Lock()
			g.requiresReauth = reauth
			g.mu.Unlock()
		}
		return false
	}

	g.mu.Lock()
	g.token = token
	g.requiresReauth = false
	g.mu.Unlock()
	return true
}

// Login exchanges a login code for a token and starts a session.
func (g *Guard) Login(ctx context.Context, code string) (core.Session, error) {
	res, err := remote.NewAPI(g.next).Login(ctx, code)
	if err != nil {
		return core.Session{}, err
	}
	g.SetToken(ctx, res.Token)
	g.log.Info("session started")
	return g.Current(), nil
}

// SetToken installs token as the current session.
func (g *Guard) SetToken(ctx context.Context, token string) {
	g.mu.Lock()
	g.token = token
	g.requiresReauth = false
	g.mu.Unlock()

	if g.cache == nil {
		return
	}
	if !g.cache.Set(ctx, tokenKey, token, 0) {
		g.log.Warn("session token not persisted")
	}
	g.cache.Remove(ctx, reauthKey)
}

// Logout ends the session and clears any pending re-authentication.
func (g *Guard) Logout(ctx context.Context) {
	g.mu.Lock()
	g.token = ""
	g.requiresReauth = false
	g.mu.Unlock()

	if g.cache != nil {
		g.cache.Remove(ctx, tokenKey)
		g.cache.Remove(ctx, reauthKey)
	}
}

// OnInvalidate registers fn to run each time the session is torn down by an
// authorization failure.
func (g *Guard) OnInvalidate(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Attach returns a copy of req carrying the current token, if any.
func (g *Guard) Attach(req *remote.Request) *remote.Request {
	out := req.Clone()

	g.mu.Lock()
	token := g.token
	g.mu.Unlock()

	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	return out
}

// OnResponse tears the session down if res signals an authorization
// failure. It returns true only for the call that performed the teardown.
func (g *Guard) OnResponse(ctx context.Context, res *remote.Result) bool {
	if res == nil || !res.AuthExpired {
		return false
	}
	return g.invalidate(ctx, nil)
}

// Do attaches the token, forwards req and inspects the result.
func (g *Guard) Do(ctx context.Context, req *remote.Request) (*remote.Result, error) {
	attached := g.Attach(req)
	res, err := g.next.Do(ctx, attached)
	if err != nil {
		return nil, err
	}
	if res.AuthExpired {
		sent := strings.TrimPrefix(attached.Authorization(), "Bearer ")
		g.invalidate(ctx, &sent)
	}
	return res, nil
}

// invalidate clears the session. When sentWith is set, a session that was
// replaced after the request went out is left alone.
func (g *Guard) invalidate(ctx context.Context, sentWith *string) bool {
	g.mu.Lock()
	if sentWith != nil && *sentWith != g.token {
		g.mu.Unlock()
		return false
	}
	if g.requiresReauth {
		g.mu.Unlock()
		return false
	}
	g.token = ""
	g.requiresReauth = true
	listeners := append([]func(){}, g.listeners...)
	g.mu.Unlock()

	if g.cache != nil {
		g.cache.Remove(ctx, tokenKey)
		g.cache.Set(ctx, reauthKey, true, 0)
	}
	g.log.Warn("session invalidated by authorization failure")

	for _, fn := range listeners {
		fn()
	}
	return true
}

// RequiresReauth reports whether the last session ended with an authorization failure.
func (g *Guard) RequiresReauth() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requiresReauth
}

// Current returns the current session. Subject and expiry are read from the
// token when it is a JWT; the signature is not checked.
func (g *Guard) Current() core.Session {
	g.mu.Lock()
	token := g.token
	g.mu.Unlock()

	s := core.Session{Token: token}
	if token == "" {
		return s
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return s
	}
	if sub, err := claims.GetSubject(); err == nil {
		s.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time.UTC().Truncate(time.Second)
	}
	return s
}

var _ remote.Doer = (*Guard)(nil)
