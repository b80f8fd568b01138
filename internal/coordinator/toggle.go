package coordinator

import (
	"context"

	"go.uber.org/zap"

	"github.com/artpar/cardsync/internal/core"
	"github.com/artpar/cardsync/internal/ledger"
)

// change captures what a toggle did so a failure can reverse exactly that.
type change struct {
	key  ticketKey
	gen  uint64
	next core.Entity
	undo core.EntityPatch

	added   bool
	removed bool
	removal ledger.Removal
}

// confirm performs the remote side of a mutation. The returned patch holds
// fields the server reported back and is applied on commit.
type confirm func(ctx context.Context) (core.EntityPatch, error)

// step moves a counter by one, never below zero.
func step(n int64, up bool) int64 {
	if up {
		return n + 1
	}
	if n > 0 {
		return n - 1
	}
	return 0
}

// ToggleFavorite flips the favorite flag of a loaded entity. The tentative
// change, including the ledger add or remove, is visible when it returns.
func (c *Coordinator) ToggleFavorite(ctx context.Context, id string) (*Mutation, error) {
	c.mu.Lock()
	prior, ok := c.entities[id]
	if !ok {
		c.mu.Unlock()
		return nil, core.InvalidState(id)
	}

	ch := &change{key: ticketKey{id, OpFavorite}}
	ch.gen = c.bumpLocked(ch.key)

	ch.next = prior
	ch.next.IsFavorited = !prior.IsFavorited
	ch.next.Favorites = step(prior.Favorites, ch.next.IsFavorited)
	ch.undo = core.EntityPatch{IsFavorited: &prior.IsFavorited, Favorites: &prior.Favorites}
	c.entities[id] = ch.next

	if ch.next.IsFavorited {
		ch.added = c.visible.Add(ch.next)
	} else {
		ch.removal, ch.removed = c.visible.Remove(id)
	}
	c.mu.Unlock()

	on := ch.next.IsFavorited
	return c.dispatch(ctx, ch, func(ctx context.Context) (core.EntityPatch, error) {
		return core.EntityPatch{}, c.api.SetFavorite(ctx, id, on)
	}), nil
}

// ToggleLike flips the like flag of a loaded entity.
func (c *Coordinator) ToggleLike(ctx context.Context, id string) (*Mutation, error) {
	c.mu.Lock()
	prior, ok := c.entities[id]
	if !ok {
		c.mu.Unlock()
		return nil, core.InvalidState(id)
	}

	ch := &change{key: ticketKey{id, OpLike}}
	ch.gen = c.bumpLocked(ch.key)

	ch.next = prior
	ch.next.IsLiked = !prior.IsLiked
	ch.next.Likes = step(prior.Likes, ch.next.IsLiked)
	ch.undo = core.EntityPatch{IsLiked: &prior.IsLiked, Likes: &prior.Likes}
	c.entities[id] = ch.next
	c.visible.Replace(ch.next)
	c.mu.Unlock()

	on := ch.next.IsLiked
	return c.dispatch(ctx, ch, func(ctx context.Context) (core.EntityPatch, error) {
		likes, err := c.api.SetLike(ctx, id, on)
		if err != nil {
			return core.EntityPatch{}, err
		}
		return core.EntityPatch{Likes: likes}, nil
	}), nil
}

func (c *Coordinator) bumpLocked(key ticketKey) uint64 {
	c.tickets[key]++
	c.states[key] = Pending
	return c.tickets[key]
}

// dispatch notifies listeners of the tentative entity and starts the remote
// confirmation. Without a session and with offline toggles enabled the
// change is committed locally instead.
func (c *Coordinator) dispatch(ctx context.Context, ch *change, call confirm) *Mutation {
	m := newMutation(ch.key.id, ch.key.op, ch.gen, ch.next)
	c.notify(ch.next, Pending)

	if !c.hasSession() && c.settings.OfflineToggles {
		m.finish(c.settle(ctx, ch, core.EntityPatch{}, nil, true))
		return m
	}

	// The mutation outlives the caller's request; only the client timeout
	// bounds it.
	ctx = context.WithoutCancel(ctx)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		confirmed, err := call(ctx)
		m.finish(c.settle(ctx, ch, confirmed, err, false))
	}()
	return m
}

// settle applies a remote result, or discards it when a newer mutation of
// the same kind has been issued for the entity.
func (c *Coordinator) settle(ctx context.Context, ch *change, confirmed core.EntityPatch, err error, local bool) Outcome {
	id := ch.key.id

	c.mu.Lock()
	if c.tickets[ch.key] != ch.gen {
		e := c.entities[id]
		c.mu.Unlock()
		c.log.Debug("stale result discarded",
			zap.String("id", id),
			zap.String("op", string(ch.key.op)),
			zap.Uint64("generation", ch.gen),
			zap.Error(err))
		return Outcome{State: Superseded, Entity: e, Local: local}
	}

	if err == nil {
		e := confirmed.Apply(c.entities[id])
		c.entities[id] = e
		c.states[ch.key] = Committed
		c.visible.Replace(e)
		c.commitLocked(ctx, ch.key.op, e)
		c.mu.Unlock()

		c.notify(e, Committed)
		return Outcome{State: Committed, Entity: e, Local: local}
	}

	e := ch.undo.Apply(c.entities[id])
	c.entities[id] = e
	c.states[ch.key] = RolledBack
	if ch.added {
		c.visible.Remove(id)
	}
	if ch.removed {
		c.visible.Restore(ch.removal)
	}
	c.visible.Replace(e)
	c.mu.Unlock()

	c.log.Info("mutation rolled back",
		zap.String("id", id),
		zap.String("op", string(ch.key.op)),
		zap.Error(err))
	c.notify(e, RolledBack)
	return Outcome{State: RolledBack, Entity: e, Err: err}
}

// commitLocked carries a confirmed change into the durable ledger and the
// entity cache. Nothing else writes the ledger snapshot.
func (c *Coordinator) commitLocked(ctx context.Context, op Op, e core.Entity) {
	switch op {
	case OpFavorite:
		if e.IsFavorited {
			if r, ok := c.visible.Get(e.ID); ok {
				c.durable.Put(r)
			} else {
				c.durable.Add(e)
			}
			c.durable.Replace(e)
		} else {
			c.durable.Remove(e.ID)
		}
	case OpLike:
		if r, ok := c.durable.Get(e.ID); ok {
			c.durable.Replace(core.EntityPatch{IsLiked: &e.IsLiked, Likes: &e.Likes}.Apply(r.Entity))
		}
	}

	c.durable.Persist(ctx)
	c.cacheEntityLocked(ctx, e)
}
