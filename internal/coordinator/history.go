package coordinator

import (
	"context"
	"fmt"

	"github.com/artpar/cardsync/internal/core"
)

const (
	historyPrefix   = "cache/history/"
	historyPageSize = 20
)

func historyKey(page int, kind core.Kind) string {
	if kind == "" {
		kind = "all"
	}
	return fmt.Sprintf("%s%s/%d", historyPrefix, kind, page)
}

// History returns one page of previously generated cards, newest first, and
// registers each card as loaded so it can be toggled. Pages are cached for
// the configured TTL; fetching an uncached page requires a session.
func (c *Coordinator) History(ctx context.Context, page int, kind core.Kind) ([]core.Entity, error) {
	if page < 1 {
		page = 1
	}
	key := historyKey(page, kind)

	var cards []core.Entity
	if c.cache != nil && c.cache.Get(ctx, key, &cards) {
		return c.adoptAll(ctx, cards, false), nil
	}

	if !c.hasSession() {
		return nil, core.Authorization("sign in to view card history")
	}

	cards, err := c.api.History(ctx, page, historyPageSize, kind)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(ctx, key, cards, c.settings.CacheTTL)
	}
	return c.adoptAll(ctx, cards, true), nil
}

func (c *Coordinator) adoptAll(ctx context.Context, cards []core.Entity, store bool) []core.Entity {
	out := make([]core.Entity, 0, len(cards))
	for _, e := range cards {
		if e.ID == "" {
			continue
		}
		out = append(out, c.adopt(ctx, e, false, store))
	}
	return out
}
