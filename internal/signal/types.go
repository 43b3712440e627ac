// Package signal defines the inbound trade signal model. Parsing from
// messaging channels happens upstream; by the time a signal reaches the
// engine it is already structured.
package signal

import (
	"fmt"
	"time"

	common "signal-engine/pkg/venue/common"
)

// MaxTakeProfitTiers is the most TP tiers a provider may attach.
const MaxTakeProfitTiers = 4

// LegConfig says which legs of a signal the provider wants executed.
// Resolved upstream per provider.
type LegConfig struct {
	TakeOriginal bool
	TakeOpposite bool
}

// TradeSignal is one routed signal. ID is opaque and globally unique;
// at most one original and one opposite execution attempt exist per ID.
type TradeSignal struct {
	ID          string
	Asset       string
	Direction   common.Side
	EntryPrice  *float64  // nil means execute at market
	StopLoss    float64   // 0 means not provided
	TakeProfits []float64 // up to MaxTakeProfitTiers, nearest first
	Legs        LegConfig
	Volume      float64 // 0 means venue default lot
	StrategyTag string
	ReceivedAt  time.Time
}

// PrimaryTakeProfit returns the first TP tier, or 0 when none is set.
func (s *TradeSignal) PrimaryTakeProfit() float64 {
	if len(s.TakeProfits) == 0 {
		return 0
	}
	return s.TakeProfits[0]
}

// ValidationError marks a malformed signal: dropped and logged, never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal: %s: %s", e.Field, e.Msg)
}

// Validate checks structural soundness of the signal.
func (s *TradeSignal) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Msg: "missing signal id"}
	}
	if s.Asset == "" {
		return &ValidationError{Field: "asset", Msg: "missing asset"}
	}
	if s.Direction != common.SideBuy && s.Direction != common.SideSell {
		return &ValidationError{Field: "direction", Msg: fmt.Sprintf("unknown direction %q", s.Direction)}
	}
	if s.EntryPrice != nil && *s.EntryPrice <= 0 {
		return &ValidationError{Field: "entry_price", Msg: "entry price must be positive"}
	}
	if s.StopLoss < 0 {
		return &ValidationError{Field: "stop_loss", Msg: "stop loss must not be negative"}
	}
	if len(s.TakeProfits) > MaxTakeProfitTiers {
		return &ValidationError{Field: "take_profits", Msg: fmt.Sprintf("at most %d tiers allowed", MaxTakeProfitTiers)}
	}
	for i, tp := range s.TakeProfits {
		if tp <= 0 {
			return &ValidationError{Field: "take_profits", Msg: fmt.Sprintf("tier %d must be positive", i+1)}
		}
	}
	if !s.Legs.TakeOriginal && !s.Legs.TakeOpposite {
		return &ValidationError{Field: "legs", Msg: "no leg selected for execution"}
	}
	return nil
}
