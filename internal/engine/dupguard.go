package engine

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrDuplicateSignalLeg means this (signal, leg) pair was already
// claimed by a live attempt or confirmed filled in a past run.
var ErrDuplicateSignalLeg = errors.New("duplicate signal leg")

// ProcessedStore is the durable side of the duplicate guard. Entries
// survive restarts; only confirmed fills are written to it.
type ProcessedStore interface {
	MarkProcessed(signalID string, opposite bool) error
	IsProcessed(signalID string, opposite bool) (bool, error)
}

type legKey struct {
	signalID string
	opposite bool
}

// DupGuard enforces at-most-one execution per signal leg. Tier one is
// an in-process claim map covering concurrent deliveries within a run.
// Tier two is the durable store covering redeliveries across restarts.
// A failed attempt keeps its in-process claim: retrying a venue reject
// with identical inputs would fail identically, so the signal is burned
// either way.
type DupGuard struct {
	mu        sync.Mutex
	claimed   map[legKey]struct{}
	processed ProcessedStore
}

func NewDupGuard(processed ProcessedStore) *DupGuard {
	return &DupGuard{
		claimed:   make(map[legKey]struct{}),
		processed: processed,
	}
}

// Claim reserves a leg for execution. The durable store is consulted
// only for original legs: opposite legs carry the same signal id and a
// separate flag, and their redelivery is fenced by the original leg's
// claim path upstream.
func (g *DupGuard) Claim(signalID string, opposite bool) error {
	key := legKey{signalID: signalID, opposite: opposite}

	g.mu.Lock()
	if _, dup := g.claimed[key]; dup {
		g.mu.Unlock()
		return errors.Wrapf(ErrDuplicateSignalLeg, "signal %s opposite=%v", signalID, opposite)
	}
	g.claimed[key] = struct{}{}
	g.mu.Unlock()

	if !opposite && g.processed != nil {
		done, err := g.processed.IsProcessed(signalID, opposite)
		if err != nil {
			return errors.Wrap(err, "duplicate guard store read")
		}
		if done {
			return errors.Wrapf(ErrDuplicateSignalLeg, "signal %s already executed in a previous run", signalID)
		}
	}
	return nil
}

// MarkFilled records a confirmed fill durably. Called only once a
// position actually opened; submissions that never fill leave no
// durable trace so a replay after restart can retry them.
func (g *DupGuard) MarkFilled(signalID string, opposite bool) error {
	if g.processed == nil {
		return nil
	}
	return errors.Wrap(g.processed.MarkProcessed(signalID, opposite), "duplicate guard store write")
}
