package engine

import (
	common "signal-engine/pkg/venue/common"
)

// MirrorLevels derives the opposite leg from the original. Direction
// flips and the protective distances are preserved on the other side of
// entry: the mirrored stop sits where the original's distance to its
// stop would land going the other way, likewise for the target. A zero
// level on the original stays zero on the mirror.
func MirrorLevels(direction common.Side, entry, stopLoss, takeProfit float64) (common.Side, float64, float64) {
	mirrored := direction.Opposite()

	var sl, tp float64
	if stopLoss > 0 {
		dist := entry - stopLoss
		if dist < 0 {
			dist = -dist
		}
		if mirrored == common.SideBuy {
			sl = entry - dist
		} else {
			sl = entry + dist
		}
	}
	if takeProfit > 0 {
		dist := takeProfit - entry
		if dist < 0 {
			dist = -dist
		}
		if mirrored == common.SideBuy {
			tp = entry + dist
		} else {
			tp = entry - dist
		}
	}
	return mirrored, sl, tp
}
