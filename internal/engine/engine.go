// Package engine routes trade signals to the primary venue and tracks
// the resulting execution lifecycle through to cross-venue matching.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"signal-engine/internal/events"
	"signal-engine/internal/matchq"
	"signal-engine/pkg/db"
	"signal-engine/pkg/logger"
	common "signal-engine/pkg/venue/common"
)

// Config holds engine timing and behavior knobs.
type Config struct {
	PendingWatchTimeout time.Duration
	SweepInterval       time.Duration
	PriceRetryDelay     time.Duration
	AmendConfirmTimeout time.Duration
	AmendAssumeSuccess  bool
	CloseTolerance      float64 // fraction, e.g. 0.005
	InstanceTag         string
}

// Engine owns the execution lifecycle: signal → order → position → close.
type Engine struct {
	cfg     Config
	gateway common.Gateway
	db      *db.Database
	bus     *events.Bus
	queue   *matchq.Queue
	tracker *Tracker
	guard   *DupGuard
	sltp    *SLTPStrategy
	log     *logrus.Entry

	// wg covers in-flight venue submissions so shutdown can let them
	// run to completion instead of aborting mid-flight.
	wg sync.WaitGroup
}

// New wires an Engine from its collaborators.
func New(cfg Config, gateway common.Gateway, database *db.Database, bus *events.Bus, queue *matchq.Queue, processed ProcessedStore) *Engine {
	if cfg.CloseTolerance <= 0 {
		cfg.CloseTolerance = 0.005
	}
	if cfg.PriceRetryDelay <= 0 {
		cfg.PriceRetryDelay = 500 * time.Millisecond
	}
	return &Engine{
		cfg:     cfg,
		gateway: gateway,
		db:      database,
		bus:     bus,
		queue:   queue,
		tracker: NewTracker(cfg.PendingWatchTimeout, bus),
		guard:   NewDupGuard(processed),
		sltp:    NewSLTPStrategy(gateway, cfg.AmendConfirmTimeout, cfg.AmendAssumeSuccess),
		log:     logger.Component("engine"),
	}
}

// Pending exposes the pending watch registry (ops API, tests).
func (e *Engine) Pending() []PendingWatch {
	return e.tracker.Snapshot()
}

// Start launches the background workers: event classification and the
// pending watch sweep. Both stop when ctx is done.
func (e *Engine) Start(ctx context.Context) {
	go e.runClassifier(ctx)
	go e.tracker.RunSweep(ctx, e.cfg.SweepInterval)
}

// Wait blocks until all in-flight submissions have completed.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// openPosition records a fill: creates the position row, marks the
// original leg processed, enqueues the matching entry, applies deferred
// protective levels, and notifies observers. Shared between the
// immediate-fill path and the classifier.
func (e *Engine) openPosition(ctx context.Context, w PendingWatch, positionID string, fillPrice float64) {
	rec := db.PositionRecord{
		PositionID: positionID,
		SignalID:   w.SignalID,
		IsOpposite: w.IsOpposite,
		Symbol:     w.Symbol,
		Direction:  string(w.Direction),
		EntryPrice: fillPrice,
		StopLoss:   w.StopLoss,
		TakeProfit: w.TakeProfit,
	}
	if err := e.db.CreatePosition(ctx, rec); err != nil {
		e.log.WithError(err).Errorf("store position %s", positionID)
	}

	// Processed flag is set only on a confirmed fill of the original
	// leg; the opposite leg is tracked separately and must not block.
	if err := e.guard.MarkFilled(w.SignalID, w.IsOpposite); err != nil {
		e.log.WithError(err).Errorf("mark signal %s processed", w.SignalID)
	}

	if err := e.queue.Enqueue(ctx, db.QueueEntry{
		Asset:       w.Symbol,
		Direction:   string(w.Direction),
		StrategyTag: w.StrategyTag,
		IsOpposite:  w.IsOpposite,
	}); err != nil {
		e.log.WithError(err).Errorf("enqueue match entry for %s", positionID)
	}

	e.bus.Publish(events.EventPositionOpened, rec)
	e.log.Infof("position %s opened: %s %s @ %.5f (signal %s, opposite=%v)",
		positionID, w.Symbol, w.Direction, fillPrice, w.SignalID, w.IsOpposite)

	// Market orders must not embed absolute protective levels, so they
	// are amended in once the fill supplies the position id.
	if w.ApplyStopsAfterFill && (w.StopLoss > 0 || w.TakeProfit > 0) {
		sl, tp, err := e.sltp.Apply(ctx, positionID, w.StopLoss, w.TakeProfit)
		if err != nil {
			e.log.WithError(err).Errorf("apply protective levels to %s", positionID)
		}
		if sl > 0 || tp > 0 {
			if err := e.db.UpdatePositionStops(ctx, positionID, sl, tp); err != nil {
				e.log.WithError(err).Errorf("persist protective levels for %s", positionID)
			}
		}
	}
}
