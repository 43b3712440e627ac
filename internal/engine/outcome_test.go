package engine

import (
	"testing"

	"signal-engine/pkg/db"
	common "signal-engine/pkg/venue/common"
)

func TestInferCloseReason(t *testing.T) {
	tests := []struct {
		name      string
		exit      float64
		sl        float64
		tp        float64
		tolerance float64
		want      string
	}{
		{"exact stop", 1.0730, 1.0730, 1.0800, 0.005, CloseReasonStopLoss},
		{"exact target", 1.0800, 1.0730, 1.0800, 0.005, CloseReasonTakeProfit},
		{"slippage near stop", 1.0728, 1.0730, 1.0800, 0.005, CloseReasonStopLoss},
		{"gap beyond tolerance is manual", 1.0500, 1.0730, 1.0800, 0.005, CloseReasonManual},
		{"midway within stop band resolves to stop", 1.0765, 1.0730, 1.0800, 0.005, CloseReasonStopLoss},
		{"beyond target is manual", 1.0900, 1.0730, 1.0800, 0.005, CloseReasonManual},
		{"stop wins when both match", 100.0, 100.2, 99.9, 0.005, CloseReasonStopLoss},
		{"no levels set is manual", 1.0750, 0, 0, 0.005, CloseReasonManual},
		{"tight tolerance excludes slippage", 1.0728, 1.0730, 1.0800, 0.00001, CloseReasonManual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferCloseReason(tt.exit, tt.sl, tt.tp, tt.tolerance)
			if got != tt.want {
				t.Errorf("InferCloseReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name      string
		direction common.Side
		entry     float64
		exit      float64
		want      string
	}{
		{"buy closed higher is profit", common.SideBuy, 1.0750, 1.0800, db.OutcomeProfit},
		{"buy closed lower is loss", common.SideBuy, 1.0750, 1.0730, db.OutcomeLoss},
		{"sell closed lower is profit", common.SideSell, 1.0750, 1.0700, db.OutcomeProfit},
		{"sell closed higher is loss", common.SideSell, 1.0750, 1.0770, db.OutcomeLoss},
		{"flat exit is breakeven", common.SideBuy, 1.0750, 1.0750, db.OutcomeBreakeven},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Outcome(tt.direction, tt.entry, tt.exit)
			if got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatRiskReward(t *testing.T) {
	tests := []struct {
		name  string
		entry float64
		sl    float64
		tp    float64
		want  string
	}{
		{"reward dominates", 1.0750, 1.0730, 1.0800, "1:2.5"},
		{"risk dominates", 1.0750, 1.0710, 1.0770, "2:1"},
		{"even", 1.0750, 1.0730, 1.0770, "1:1"},
		{"fractional ratio", 100, 98, 103, "1:1.5"},
		{"missing stop", 1.0750, 0, 1.0800, ""},
		{"missing target", 1.0750, 1.0730, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatRiskReward(tt.entry, tt.sl, tt.tp)
			if got != tt.want {
				t.Errorf("FormatRiskReward() = %q, want %q", got, tt.want)
			}
		})
	}
}
