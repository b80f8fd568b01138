package coordinator

import (
	"context"

	"github.com/artpar/cardsync/internal/core"
)

// State is the lifecycle state of a mutation on one entity.
type State int

const (
	Idle State = iota
	Pending
	Committed
	RolledBack
	// Superseded is reported for a result discarded because a newer
	// mutation on the same entity was issued before it arrived.
	Superseded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Op names the field a mutation changes.
type Op string

const (
	OpFavorite Op = "favorite"
	OpLike     Op = "like"
)

// Outcome is the final result of a mutation.
type Outcome struct {
	ID         string
	Op         Op
	Generation uint64
	State      State
	// Entity is the copy visible once the outcome was applied.
	Entity core.Entity
	// Err is set when State is RolledBack.
	Err error
	// Local is true when the mutation was committed without a remote call.
	Local bool
}

// Mutation is the handle returned by a toggle. Tentative is already visible
// to every reader when the toggle call returns.
type Mutation struct {
	ID         string
	Op         Op
	Generation uint64
	Tentative  core.Entity

	done    chan struct{}
	outcome Outcome
}

func newMutation(id string, op Op, gen uint64, tentative core.Entity) *Mutation {
	return &Mutation{
		ID:         id,
		Op:         op,
		Generation: gen,
		Tentative:  tentative,
		done:       make(chan struct{}),
	}
}

func (m *Mutation) finish(o Outcome) {
	o.ID = m.ID
	o.Op = m.Op
	o.Generation = m.Generation
	m.outcome = o
	close(m.done)
}

// Done is closed once the outcome is known.
func (m *Mutation) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the outcome is known or ctx ends.
func (m *Mutation) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-m.done:
		return m.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Err waits for the outcome and returns its error.
func (m *Mutation) Err() error {
	<-m.done
	return m.outcome.Err
}
