package engine

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"signal-engine/internal/events"
	"signal-engine/internal/resolver"
	"signal-engine/internal/signal"
	common "signal-engine/pkg/venue/common"
)

// Journal states for terminal signal-leg outcomes.
const (
	JournalValidationFailed      = "VALIDATION_FAILED"
	JournalMarketabilityRejected = "MARKETABILITY_REJECTED"
	JournalAbandoned             = "ABANDONED"
	JournalDuplicate             = "DUPLICATE"
)

// leg is one execution attempt derived from a signal: either the
// original intent or its mirror.
type leg struct {
	signalID    string
	asset       string
	direction   common.Side
	entry       *float64
	stopLoss    float64
	takeProfit  float64
	volume      float64
	strategyTag string
	opposite    bool
}

// HandleSignal validates and executes a routed signal. Legs execute
// sequentially: the original first, then the mirror when requested. A
// failed leg never blocks the other.
func (e *Engine) HandleSignal(ctx context.Context, sig signal.TradeSignal) error {
	if err := sig.Validate(); err != nil {
		e.log.WithError(err).Warnf("dropping signal %q", sig.ID)
		if sig.ID != "" {
			if jerr := e.db.JournalSignal(ctx, sig.ID, false, JournalValidationFailed, err.Error()); jerr != nil {
				e.log.WithError(jerr).Error("journal validation failure")
			}
		}
		return err
	}

	e.bus.Publish(events.EventSignalReceived, sig)

	var firstErr error
	if sig.Legs.TakeOriginal {
		original := leg{
			signalID:    sig.ID,
			asset:       sig.Asset,
			direction:   sig.Direction,
			entry:       sig.EntryPrice,
			stopLoss:    sig.StopLoss,
			takeProfit:  sig.PrimaryTakeProfit(),
			volume:      sig.Volume,
			strategyTag: sig.StrategyTag,
		}
		if err := e.executeLeg(ctx, original); err != nil {
			firstErr = err
		}
	}

	if sig.Legs.TakeOpposite {
		mirror, err := e.mirrorLeg(ctx, sig)
		if err != nil {
			e.log.WithError(err).Warnf("signal %s: opposite leg abandoned", sig.ID)
			e.journalAbandon(ctx, leg{signalID: sig.ID, opposite: true}, err.Error())
			if firstErr == nil {
				firstErr = err
			}
		} else if err := e.executeLeg(ctx, mirror); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// mirrorLeg builds the opposite leg. Protective distances mirror around
// the original entry; a market signal mirrors around the live price
// fetched at planning time. Without an anchor the mirrored levels are
// meaningless, so the leg is refused rather than built.
func (e *Engine) mirrorLeg(ctx context.Context, sig signal.TradeSignal) (leg, error) {
	var anchor float64
	if sig.EntryPrice != nil {
		anchor = *sig.EntryPrice
	} else {
		spot, err := e.fetchSpot(ctx, sig.Asset)
		if err != nil {
			return leg{}, errors.Wrap(err, "no anchor price for opposite leg")
		}
		anchor = (spot.Bid + spot.Ask) / 2
	}

	dir, sl, tp := MirrorLevels(sig.Direction, anchor, sig.StopLoss, sig.PrimaryTakeProfit())
	return leg{
		signalID:    sig.ID,
		asset:       sig.Asset,
		direction:   dir,
		entry:       sig.EntryPrice,
		stopLoss:    sl,
		takeProfit:  tp,
		volume:      sig.Volume,
		strategyTag: sig.StrategyTag,
		opposite:    true,
	}, nil
}

func (e *Engine) executeLeg(ctx context.Context, l leg) error {
	if err := e.guard.Claim(l.signalID, l.opposite); err != nil {
		if stderrors.Is(err, ErrDuplicateSignalLeg) {
			e.log.Warnf("signal %s opposite=%v: already executed, skipping", l.signalID, l.opposite)
			if jerr := e.db.JournalSignal(ctx, l.signalID, l.opposite, JournalDuplicate, err.Error()); jerr != nil {
				e.log.WithError(jerr).Error("journal duplicate")
			}
			return nil
		}
		return err
	}

	spot, err := e.fetchSpot(ctx, l.asset)
	if err != nil {
		e.journalAbandon(ctx, l, errors.Wrap(err, "no live price").Error())
		return err
	}

	orderType := resolver.Classify(l.direction, l.entry, spot)

	// Conditional orders are re-checked against a quote fetched just
	// before submission; the classification quote may already be stale.
	if orderType != common.OrderTypeMarket {
		fresh, err := e.gateway.GetSpot(ctx, l.asset)
		if err != nil {
			fresh = spot
		}
		if err := resolver.CheckMarketable(l.direction, orderType, *l.entry, fresh); err != nil {
			e.log.Warnf("signal %s: %s %s %s @ %.5f rejected: %v (bid=%.5f ask=%.5f)",
				l.signalID, orderType, l.direction, l.asset, *l.entry, err, fresh.Bid, fresh.Ask)
			e.journalLeg(ctx, l, JournalMarketabilityRejected, err.Error())
			return err
		}
	}

	req := common.OrderRequest{
		Symbol:   l.asset,
		Side:     l.direction,
		Type:     orderType,
		Volume:   l.volume,
		ClientID: e.cfg.InstanceTag + "-" + uuid.NewString(),
	}
	if orderType != common.OrderTypeMarket {
		req.Price = *l.entry
	}

	// Market fills land at an unknown price, so absolute protective
	// levels ride along only on conditional orders and are amended in
	// after the fill otherwise.
	deferStops := orderType == common.OrderTypeMarket
	if !deferStops {
		req.StopLoss = l.stopLoss
		req.TakeProfit = l.takeProfit
	}

	return e.submit(ctx, l, req, deferStops)
}

// submit sends the order and routes the ack. Runs under the engine
// WaitGroup with a detached context so shutdown drains in-flight
// submissions instead of cancelling them mid-wire.
func (e *Engine) submit(ctx context.Context, l leg, req common.OrderRequest, deferStops bool) error {
	e.wg.Add(1)
	defer e.wg.Done()
	subCtx := context.WithoutCancel(ctx)

	res, err := e.gateway.SubmitOrder(subCtx, req)
	if err != nil {
		return e.handleSubmitError(subCtx, l, req, deferStops, err)
	}

	w := PendingWatch{
		OrderID:             res.OrderID,
		SignalID:            l.signalID,
		Symbol:              l.asset,
		Direction:           l.direction,
		IsOpposite:          l.opposite,
		StopLoss:            l.stopLoss,
		TakeProfit:          l.takeProfit,
		ApplyStopsAfterFill: deferStops,
		StrategyTag:         l.strategyTag,
		CreatedAt:           time.Now(),
	}

	if res.PositionID != "" || res.Status == common.StatusFilled {
		positionID := res.PositionID
		if positionID == "" {
			positionID = res.OrderID
		}
		e.openPosition(subCtx, w, positionID, res.FillPrice)
		return nil
	}

	e.tracker.Register(w)
	e.bus.Publish(events.EventOrderSubmitted, w)
	e.log.Infof("order %s submitted: %s %s %s (signal %s, opposite=%v)",
		res.OrderID, req.Type, req.Side, req.Symbol, l.signalID, l.opposite)
	return nil
}

// handleSubmitError maps venue rejections to recovery actions. Invalid
// stops get one resubmission with the levels stripped and deferred to a
// post-fill amend; margin and market-state rejections are terminal.
func (e *Engine) handleSubmitError(ctx context.Context, l leg, req common.OrderRequest, deferStops bool, err error) error {
	reason, explicit := common.RejectReasonOf(err)
	if !explicit {
		e.journalAbandon(ctx, l, err.Error())
		return errors.Wrapf(err, "submit %s %s", req.Side, req.Symbol)
	}

	e.bus.Publish(events.EventOrderRejected, l.signalID)

	switch reason {
	case common.RejectInvalidStops:
		if deferStops || (req.StopLoss == 0 && req.TakeProfit == 0) {
			e.journalAbandon(ctx, l, err.Error())
			return err
		}
		e.log.Warnf("signal %s: venue rejected embedded SL/TP, resubmitting bare and amending after fill", l.signalID)
		bare := req
		bare.StopLoss = 0
		bare.TakeProfit = 0
		bare.ClientID = e.cfg.InstanceTag + "-" + uuid.NewString()
		return e.submit(ctx, l, bare, true)

	case common.RejectInsufficientMargin, common.RejectMarketClosed:
		e.log.Warnf("signal %s abandoned: %v", l.signalID, err)
		e.journalAbandon(ctx, l, err.Error())
		return err

	default:
		e.journalAbandon(ctx, l, err.Error())
		return err
	}
}

// fetchSpot fetches a live quote with one retry after a short delay.
func (e *Engine) fetchSpot(ctx context.Context, symbol string) (common.Spot, error) {
	spot, err := e.gateway.GetSpot(ctx, symbol)
	if err == nil {
		return spot, nil
	}
	e.log.WithError(err).Warnf("spot fetch for %s failed, retrying once", symbol)

	select {
	case <-ctx.Done():
		return common.Spot{}, ctx.Err()
	case <-time.After(e.cfg.PriceRetryDelay):
	}
	return e.gateway.GetSpot(ctx, symbol)
}

func (e *Engine) journalLeg(ctx context.Context, l leg, state, detail string) {
	if err := e.db.JournalSignal(ctx, l.signalID, l.opposite, state, detail); err != nil {
		e.log.WithError(err).Errorf("journal signal %s", l.signalID)
	}
}

func (e *Engine) journalAbandon(ctx context.Context, l leg, detail string) {
	e.journalLeg(ctx, l, JournalAbandoned, detail)
}
