package coordinator

import (
	"context"

	"go.uber.org/zap"

	"github.com/artpar/cardsync/internal/core"
)

// DailyEntity returns today's card. It tries the loaded copy, then the
// cached copy, then the remote service when signed in, and finally the
// built-in default. It never fails.
func (c *Coordinator) DailyEntity(ctx context.Context) core.Entity {
	c.mu.Lock()
	if e, ok := c.entities[c.dailyID]; ok && c.dailyID != "" {
		c.mu.Unlock()
		return e
	}
	c.mu.Unlock()

	if e, ok := c.cached(ctx, dailyKey); ok {
		return c.adopt(ctx, e, true, false)
	}

	if c.hasSession() {
		e, err := c.api.DailyCard(ctx)
		if err == nil {
			return c.adopt(ctx, e, true, true)
		}
		c.log.Warn("daily card fetch failed", zap.Error(err))
	}

	return c.adopt(ctx, core.DefaultEntity, true, false)
}

// RefreshDailyEntity replaces the daily card with a newly generated one of
// the configured kind. Without a session, or when generation fails, it
// rotates through the built-in fallback cards. It never fails.
func (c *Coordinator) RefreshDailyEntity(ctx context.Context) core.Entity {
	if c.hasSession() {
		e, err := c.api.GenerateCard(ctx, c.settings.CardKind)
		if err == nil {
			return c.adopt(ctx, e, true, true)
		}
		c.log.Warn("card generation failed, using fallback", zap.Error(err))
	}

	c.mu.Lock()
	n := c.refreshes
	c.refreshes++
	c.mu.Unlock()

	return c.adopt(ctx, core.Fallback(n), true, false)
}

// LoadEntity returns the entity with the given id and registers it as loaded.
// It tries the loaded copy, the cache, the remote service, the favorites
// ledger and finally the built-in cards.
func (c *Coordinator) LoadEntity(ctx context.Context, id string) (core.Entity, error) {
	if e, ok := c.Entity(id); ok {
		return e, nil
	}
	if e, ok := c.cached(ctx, entityPrefix+id); ok {
		return c.adopt(ctx, e, false, false), nil
	}

	e, err := c.api.CardDetail(ctx, id)
	if err == nil {
		return c.adopt(ctx, e, false, true), nil
	}
	if r, ok := c.visible.Get(id); ok {
		c.log.Debug("card detail unavailable, using ledger copy", zap.String("id", id), zap.Error(err))
		return c.adopt(ctx, r.Entity, false, false), nil
	}
	if e, ok := core.Builtin(id); ok {
		return c.adopt(ctx, e, false, false), nil
	}
	return core.Entity{}, err
}

// adopt registers e as loaded, taking the favorite flag from the ledger, and
// optionally marks it as the daily card and writes it to the cache.
func (c *Coordinator) adopt(ctx context.Context, e core.Entity, daily, store bool) core.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.IsFavorited = c.visible.Contains(e.ID)
	if daily {
		c.dailyID = e.ID
	}
	e = c.trackLocked(e)
	if store {
		c.cacheEntityLocked(ctx, e)
	}
	return e
}
