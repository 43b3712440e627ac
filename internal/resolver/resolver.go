// Package resolver classifies requested entries into venue order types
// relative to live price, and rejects conditional orders that would fill
// immediately.
package resolver

import (
	"errors"

	common "signal-engine/pkg/venue/common"
)

// ErrOrderWouldFillImmediately marks a conditional order that is already
// satisfiable at the live price. Such an order is semantically a market
// order the signal never requested; allowing it silently risks slippage
// divergent from signal intent.
var ErrOrderWouldFillImmediately = errors.New("order would fill immediately")

// Classify resolves the order type for a requested entry against a live
// quote. A nil entry means execute at market. Buy legs compare against
// the ask, sell legs against the bid; entry equal to market resolves to
// Limit.
func Classify(direction common.Side, entry *float64, spot common.Spot) common.OrderType {
	if entry == nil {
		return common.OrderTypeMarket
	}

	if direction == common.SideBuy {
		if *entry <= spot.Ask {
			return common.OrderTypeLimit
		}
		return common.OrderTypeStop
	}

	if *entry >= spot.Bid {
		return common.OrderTypeLimit
	}
	return common.OrderTypeStop
}

// CheckMarketable rejects conditional orders that price inside the
// immediate-fill region. Call it against a freshly fetched quote right
// before submission; market orders always pass.
func CheckMarketable(direction common.Side, typ common.OrderType, entry float64, spot common.Spot) error {
	switch typ {
	case common.OrderTypeLimit:
		if direction == common.SideBuy && entry >= spot.Ask {
			return ErrOrderWouldFillImmediately
		}
		if direction == common.SideSell && entry <= spot.Bid {
			return ErrOrderWouldFillImmediately
		}
	case common.OrderTypeStop:
		if direction == common.SideBuy && entry <= spot.Ask {
			return ErrOrderWouldFillImmediately
		}
		if direction == common.SideSell && entry >= spot.Bid {
			return ErrOrderWouldFillImmediately
		}
	}
	return nil
}
