package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"signal-engine/internal/events"
	"signal-engine/pkg/logger"
	common "signal-engine/pkg/venue/common"
)

// PendingWatch correlates an outbound order to its originating signal
// until a terminal event resolves it. Exclusively owned by the engine.
type PendingWatch struct {
	OrderID             string
	SignalID            string
	Symbol              string
	Direction           common.Side
	IsOpposite          bool
	StopLoss            float64
	TakeProfit          float64
	ApplyStopsAfterFill bool
	StrategyTag         string
	CreatedAt           time.Time
}

// Tracker holds pending watches behind a single lock. The lock is held
// only for map operations, never across I/O.
type Tracker struct {
	mu      sync.Mutex
	watches map[string]PendingWatch
	timeout time.Duration
	bus     *events.Bus
	log     *logrus.Entry
}

// NewTracker builds a Tracker with the given orphan timeout.
func NewTracker(timeout time.Duration, bus *events.Bus) *Tracker {
	if timeout <= 0 {
		timeout = 48 * time.Hour
	}
	return &Tracker{
		watches: make(map[string]PendingWatch),
		timeout: timeout,
		bus:     bus,
		log:     logger.Component("pending_tracker"),
	}
}

// Register adds a watch keyed by venue order id.
func (t *Tracker) Register(w PendingWatch) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	t.mu.Lock()
	t.watches[w.OrderID] = w
	t.mu.Unlock()
}

// Resolve removes and returns the watch for orderID.
func (t *Tracker) Resolve(orderID string) (PendingWatch, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.watches[orderID]
	if ok {
		delete(t.watches, orderID)
	}
	return w, ok
}

// Peek returns the watch without removing it.
func (t *Tracker) Peek(orderID string) (PendingWatch, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.watches[orderID]
	return w, ok
}

// UpdateStops replaces protective levels on a still-pending watch so the
// eventual position opens with the current values.
func (t *Tracker) UpdateStops(orderID string, sl, tp float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.watches[orderID]
	if !ok {
		return false
	}
	if sl > 0 {
		w.StopLoss = sl
	}
	if tp > 0 {
		w.TakeProfit = tp
	}
	t.watches[orderID] = w
	return true
}

// Snapshot returns a copy of all current watches.
func (t *Tracker) Snapshot() []PendingWatch {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PendingWatch, 0, len(t.watches))
	for _, w := range t.watches {
		out = append(out, w)
	}
	return out
}

// Len returns the number of outstanding watches.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.watches)
}

// RunSweep periodically purges watches older than the timeout. Expired
// watches are logged as orphans, never auto-cancelled: venue-side state
// is unknown and blind cancellation risks acting against a fill that
// already happened. The shutdown signal is checked only between
// iterations.
func (t *Tracker) RunSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Tracker) sweep() {
	cutoff := time.Now().Add(-t.timeout)

	t.mu.Lock()
	var expired []PendingWatch
	for id, w := range t.watches {
		if w.CreatedAt.Before(cutoff) {
			expired = append(expired, w)
			delete(t.watches, id)
		}
	}
	t.mu.Unlock()

	for _, w := range expired {
		t.log.Warnf("orphan watch: order %s (signal %s, %s %s) saw no terminal event within %v; leaving venue order untouched for manual reconciliation",
			w.OrderID, w.SignalID, w.Symbol, w.Direction, t.timeout)
		if t.bus != nil {
			t.bus.Publish(events.EventOrphanWatch, w)
		}
	}
}
