package engine

import (
	"fmt"
	"math"
	"strings"

	"signal-engine/pkg/db"
	common "signal-engine/pkg/venue/common"
)

// Close reasons recorded on closed positions.
const (
	CloseReasonStopLoss   = "STOP_LOSS"
	CloseReasonTakeProfit = "TAKE_PROFIT"
	CloseReasonManual     = "MANUAL"
)

// InferCloseReason decides why a position closed by comparing the exit
// price against the protective levels that were current at close time.
// Proximity is relative: the exit matches a level when it sits within
// tolerance of it (fraction of the level itself, so the rule scales
// across price magnitudes). When both levels are within tolerance the
// stop wins, then the target; anything else is treated as a manual or
// external close.
func InferCloseReason(exitPrice, stopLoss, takeProfit, tolerance float64) string {
	if tolerance <= 0 {
		tolerance = 0.005
	}
	if near(exitPrice, stopLoss, tolerance) {
		return CloseReasonStopLoss
	}
	if near(exitPrice, takeProfit, tolerance) {
		return CloseReasonTakeProfit
	}
	return CloseReasonManual
}

func near(price, level, tolerance float64) bool {
	if level <= 0 {
		return false
	}
	return math.Abs(price-level) <= level*tolerance
}

// Outcome classifies the closed trade from the fill and exit prices.
func Outcome(direction common.Side, entryPrice, exitPrice float64) string {
	diff := exitPrice - entryPrice
	if direction == common.SideSell {
		diff = -diff
	}
	switch {
	case diff > 0:
		return db.OutcomeProfit
	case diff < 0:
		return db.OutcomeLoss
	default:
		return db.OutcomeBreakeven
	}
}

// FormatRiskReward renders the realized risk/reward of a closed trade
// from its entry and the protective levels current at close. Risk is
// the entry-to-stop distance, reward the entry-to-target distance,
// normalized so the smaller side reads 1: "1:2.5" when reward
// dominates, "2:1" when risk does. Returns "" when either distance is
// missing.
func FormatRiskReward(entryPrice, stopLoss, takeProfit float64) string {
	if stopLoss <= 0 || takeProfit <= 0 {
		return ""
	}
	risk := math.Abs(entryPrice - stopLoss)
	reward := math.Abs(takeProfit - entryPrice)
	if risk == 0 || reward == 0 {
		return ""
	}
	if reward >= risk {
		return "1:" + trimRatio(reward/risk)
	}
	return trimRatio(risk/reward) + ":1"
}

func trimRatio(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
