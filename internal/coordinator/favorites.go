package coordinator

import (
	"context"

	"go.uber.org/zap"

	"github.com/artpar/cardsync/internal/core"
	"github.com/artpar/cardsync/internal/ledger"
)

const (
	favoritesPageSize = 50
	maxFavoritePages  = 40
)

// ListFavorites returns the visible favorites matching f.
func (c *Coordinator) ListFavorites(f ledger.Filter) []core.LedgerRecord {
	return c.visible.List(f)
}

// SyncFavorites replaces the ledger with the server's favorites list. Ids
// with a pending favorite mutation keep their local state. Records already
// present keep their FavoritedAt. It returns the number of favorites.
func (c *Coordinator) SyncFavorites(ctx context.Context) (int, error) {
	if !c.hasSession() {
		return 0, core.Authorization("sign in to sync favorites")
	}

	var fetched []core.Entity
	for page := 1; page <= maxFavoritePages; page++ {
		batch, err := c.api.Favorites(ctx, page, favoritesPageSize)
		if err != nil {
			return 0, err
		}
		fetched = append(fetched, batch...)
		if len(batch) < favoritesPageSize {
			break
		}
	}

	c.mu.Lock()
	pending := func(id string) bool {
		return c.states[ticketKey{id, OpFavorite}] == Pending
	}

	now := c.now()
	remote := make(map[string]core.Entity, len(fetched))
	var durable, visible []core.LedgerRecord

	// The server lists most recent first; the ledger is oldest first.
	for i := len(fetched) - 1; i >= 0; i-- {
		e := fetched[i]
		if _, dup := remote[e.ID]; dup || pending(e.ID) {
			continue
		}
		remote[e.ID] = e

		r := core.LedgerRecord{Entity: e, FavoritedAt: now}
		if prev, ok := c.durable.Get(e.ID); ok {
			r.FavoritedAt = prev.FavoritedAt
		}
		durable = append(durable, r)
		visible = append(visible, r)
	}
	for _, r := range c.durable.Snapshot() {
		if pending(r.ID()) {
			durable = append(durable, r)
		}
	}
	for _, r := range c.visible.Snapshot() {
		if pending(r.ID()) {
			visible = append(visible, r)
		}
	}

	c.durable.Reset(durable)
	c.durable.Persist(ctx)
	c.visible.Reset(visible)

	var changed []core.Entity
	for id, cur := range c.entities {
		if pending(id) {
			continue
		}
		next := cur
		if e, ok := remote[id]; ok {
			next.IsFavorited = true
			next.Favorites = e.Favorites
		} else {
			next.IsFavorited = false
		}
		if next != cur {
			c.entities[id] = next
			changed = append(changed, next)
		}
	}
	count := c.durable.Len()
	c.mu.Unlock()

	for _, e := range changed {
		c.notify(e, Committed)
	}
	c.log.Info("favorites synced", zap.Int("count", count))
	return count, nil
}
