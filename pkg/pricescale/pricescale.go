// Package pricescale converts venue-native scaled integer prices to
// decimal prices using per-instrument digit counts.
package pricescale

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"signal-engine/pkg/logger"
)

// Normalizer maps scaled integers to decimal prices per symbol.
type Normalizer struct {
	digits        map[string]int
	defaultDigits int
	log           *logrus.Entry

	mu     sync.Mutex
	warned map[string]bool
}

// NewNormalizer builds a Normalizer from a symbol→digits table. Symbols
// missing from the table fall back to defaultDigits with a warning.
func NewNormalizer(digits map[string]int, defaultDigits int) *Normalizer {
	if defaultDigits <= 0 {
		defaultDigits = 5
	}
	if digits == nil {
		digits = map[string]int{}
	}
	return &Normalizer{
		digits:        digits,
		defaultDigits: defaultDigits,
		log:           logger.Component("pricescale"),
		warned:        make(map[string]bool),
	}
}

// Digits returns the digit count for symbol.
func (n *Normalizer) Digits(symbol string) int {
	if d, ok := n.digits[symbol]; ok {
		return d
	}

	n.mu.Lock()
	if !n.warned[symbol] {
		n.warned[symbol] = true
		n.log.Warnf("unknown digits for %s, using default %d", symbol, n.defaultDigits)
	}
	n.mu.Unlock()

	return n.defaultDigits
}

// Normalize converts a scaled integer price to its decimal value.
func (n *Normalizer) Normalize(symbol string, scaled int64) float64 {
	return decimal.New(scaled, -int32(n.Digits(symbol))).InexactFloat64()
}

// Denormalize converts a decimal price back to the venue's scaled integer.
func (n *Normalizer) Denormalize(symbol string, price float64) int64 {
	return decimal.NewFromFloat(price).Shift(int32(n.Digits(symbol))).Round(0).IntPart()
}
