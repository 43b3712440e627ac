package pricescale

import "testing"

func TestNormalizer(t *testing.T) {
	n := NewNormalizer(map[string]int{"EURUSD": 5, "XAUUSD": 2, "USDJPY": 3}, 5)

	tests := []struct {
		name   string
		symbol string
		scaled int64
		want   float64
	}{
		{"five digit fx", "EURUSD", 107503, 1.07503},
		{"two digit metal", "XAUUSD", 200045, 2000.45},
		{"three digit yen", "USDJPY", 151203, 151.203},
		{"unknown symbol uses default", "GBPUSD", 126500, 1.265},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.symbol, tt.scaled); got != tt.want {
				t.Errorf("Normalize(%s, %d) = %v, want %v", tt.symbol, tt.scaled, got, tt.want)
			}
			if back := n.Denormalize(tt.symbol, tt.want); back != tt.scaled {
				t.Errorf("Denormalize(%s, %v) = %d, want %d", tt.symbol, tt.want, back, tt.scaled)
			}
		})
	}
}

func TestDenormalizeRoundsBinaryNoise(t *testing.T) {
	n := NewNormalizer(map[string]int{"EURUSD": 5}, 5)

	// 1.0756 is not exactly representable in binary; the shift must
	// still land on the right integer.
	if got := n.Denormalize("EURUSD", 1.0756); got != 107560 {
		t.Errorf("Denormalize = %d, want 107560", got)
	}
}
