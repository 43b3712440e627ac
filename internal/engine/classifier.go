package engine

import (
	"context"
	stderrors "errors"

	"signal-engine/internal/events"
	"signal-engine/pkg/db"
	common "signal-engine/pkg/venue/common"
)

// runClassifier is the single consumer of the venue event stream. One
// goroutine keeps dispatch ordered; the actions it takes are themselves
// fast (map and sqlite operations), so no fan-out is needed.
func (e *Engine) runClassifier(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-e.gateway.Events():
			if !ok {
				return
			}
			ev, err := ParseExecutionEvent(raw.Payload)
			if err != nil {
				e.log.WithError(err).Debug("skipping unparseable event frame")
				continue
			}
			e.dispatch(ctx, ev)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev ExecutionEvent) {
	switch ev.Kind {
	case KindAccepted:
		e.onAccepted(ev)
	case KindFilled:
		e.onFilled(ctx, ev)
	case KindRejected, KindCancelled, KindExpired:
		e.onTerminated(ctx, ev)
	case KindModified:
		e.onModified(ctx, ev)
	case KindClosed:
		e.onClosed(ctx, ev)
	default:
		e.log.Debugf("ignoring event kind %q for order %q", ev.Kind, ev.OrderID)
	}
}

func (e *Engine) onAccepted(ev ExecutionEvent) {
	if _, ok := e.tracker.Peek(ev.OrderID); !ok {
		return
	}
	e.bus.Publish(events.EventOrderAccepted, ev.OrderID)
	e.log.Infof("order %s accepted by venue", ev.OrderID)
}

func (e *Engine) onFilled(ctx context.Context, ev ExecutionEvent) {
	// Inspect before claiming: a refused event must leave the watch in
	// place for the genuine fill that may still arrive.
	w, ok := e.tracker.Peek(ev.OrderID)
	if !ok {
		e.log.Warnf("fill for unknown order %s (position %s), ignoring", ev.OrderID, ev.PositionID)
		return
	}
	if ev.Symbol != "" && ev.Symbol != w.Symbol {
		e.log.Errorf("fill for order %s names symbol %s but watch expects %s, refusing to open",
			ev.OrderID, ev.Symbol, w.Symbol)
		return
	}
	e.tracker.Resolve(ev.OrderID)

	// Some venues report fills before assigning a position id. The
	// order id stands in until a later event supplies the real one.
	positionID := ev.PositionID
	if positionID == "" {
		positionID = ev.OrderID
	}
	e.openPosition(ctx, w, positionID, ev.Price)
}

func (e *Engine) onTerminated(ctx context.Context, ev ExecutionEvent) {
	w, ok := e.tracker.Resolve(ev.OrderID)
	if !ok {
		return
	}
	detail := string(ev.Kind)
	if ev.Reason != "" {
		detail += ": " + ev.Reason
	}
	e.log.Warnf("order %s for signal %s terminated without fill: %s", ev.OrderID, w.SignalID, detail)
	e.journalLeg(ctx, leg{signalID: w.SignalID, opposite: w.IsOpposite}, JournalAbandoned, detail)

	switch ev.Kind {
	case KindRejected:
		e.bus.Publish(events.EventOrderRejected, w.SignalID)
	default:
		e.bus.Publish(events.EventOrderCancelled, w.SignalID)
	}
}

// onModified applies a protective-level change. For a still-pending
// order only the watch is updated so the eventual position opens with
// current levels; for an open position the change is persisted and
// announced.
func (e *Engine) onModified(ctx context.Context, ev ExecutionEvent) {
	if ev.OrderID != "" {
		if w, ok := e.tracker.Peek(ev.OrderID); ok {
			if ev.Symbol != "" && ev.Symbol != w.Symbol {
				e.log.Errorf("modify for order %s names symbol %s but watch expects %s, refusing",
					ev.OrderID, ev.Symbol, w.Symbol)
				return
			}
			e.tracker.UpdateStops(ev.OrderID, ev.StopLoss, ev.TakeProfit)
			e.log.Infof("pending order %s levels updated: SL=%.5f TP=%.5f", ev.OrderID, ev.StopLoss, ev.TakeProfit)
			return
		}
	}

	pos, err := e.lookupPosition(ctx, ev)
	if err != nil {
		e.log.WithError(err).Warnf("modify event for unknown position %q / order %q", ev.PositionID, ev.OrderID)
		return
	}
	if ev.Symbol != "" && ev.Symbol != pos.Symbol {
		e.log.Errorf("modify for position %s names symbol %s but record holds %s, refusing",
			pos.PositionID, ev.Symbol, pos.Symbol)
		return
	}
	sl := ev.StopLoss
	if sl == 0 {
		sl = pos.StopLoss
	}
	tp := ev.TakeProfit
	if tp == 0 {
		tp = pos.TakeProfit
	}
	if err := e.db.UpdatePositionStops(ctx, pos.PositionID, sl, tp); err != nil {
		e.log.WithError(err).Errorf("persist modified levels for %s", pos.PositionID)
		return
	}
	e.bus.Publish(events.EventPositionModified, pos.PositionID)
	e.log.Infof("position %s levels updated: SL=%.5f TP=%.5f", pos.PositionID, sl, tp)
}

func (e *Engine) onClosed(ctx context.Context, ev ExecutionEvent) {
	pos, err := e.lookupPosition(ctx, ev)
	if err != nil {
		if stderrors.Is(err, db.ErrNotFound) {
			e.log.Debugf("close event for untracked position %q, ignoring", ev.PositionID)
		} else {
			e.log.WithError(err).Errorf("lookup closed position %q", ev.PositionID)
		}
		return
	}
	if pos.Status != db.PositionOpen {
		return
	}
	if ev.Symbol != "" && ev.Symbol != pos.Symbol {
		e.log.Errorf("close for position %s names symbol %s but record holds %s, refusing",
			pos.PositionID, ev.Symbol, pos.Symbol)
		return
	}

	reason := InferCloseReason(ev.Price, pos.StopLoss, pos.TakeProfit, e.cfg.CloseTolerance)
	outcome := Outcome(common.Side(pos.Direction), pos.EntryPrice, ev.Price)
	rr := FormatRiskReward(pos.EntryPrice, pos.StopLoss, pos.TakeProfit)

	if err := e.db.ClosePosition(ctx, pos.PositionID, ev.Price, outcome, reason, rr); err != nil {
		e.log.WithError(err).Errorf("close position %s", pos.PositionID)
		return
	}
	e.journalLeg(ctx, leg{signalID: pos.SignalID, opposite: pos.IsOpposite}, "CLOSED", reason)
	e.bus.Publish(events.EventPositionClosed, pos.PositionID)
	e.log.Infof("position %s closed @ %.5f: %s, %s, R:R %s", pos.PositionID, ev.Price, outcome, reason, rr)
}

// lookupPosition resolves the event's position, trying the position id
// first and falling back to the order id for venues that reuse it.
func (e *Engine) lookupPosition(ctx context.Context, ev ExecutionEvent) (*db.PositionRecord, error) {
	if ev.PositionID != "" {
		pos, err := e.db.GetPosition(ctx, ev.PositionID)
		if err == nil {
			return pos, nil
		}
		if !stderrors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}
	if ev.OrderID != "" {
		return e.db.GetPosition(ctx, ev.OrderID)
	}
	return nil, db.ErrNotFound
}
