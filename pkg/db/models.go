package db

import "time"

// Position status values.
const (
	PositionOpen   = "OPEN"
	PositionClosed = "CLOSED"
)

// Position outcome values.
const (
	OutcomeProfit    = "PROFIT"
	OutcomeLoss      = "LOSS"
	OutcomeBreakeven = "BREAKEVEN"
)

// PositionRecord is a filled trade on the primary venue. Created on fill,
// mutated by amendment events, closed (never deleted) by close events.
type PositionRecord struct {
	PositionID  string
	SignalID    string
	IsOpposite  bool
	Symbol      string
	Direction   string
	EntryPrice  float64
	StopLoss    float64
	TakeProfit  float64
	Status      string
	Outcome     string
	CloseReason string
	RiskReward  string
	ExitPrice   float64
	OpenedAt    time.Time
	ClosedAt    *time.Time
	UpdatedAt   time.Time
}

// QueueEntry is one row of the cross-venue matching queue. It carries
// matching metadata only; the secondary venue owns its own trade records.
type QueueEntry struct {
	ID          int64
	Asset       string
	Direction   string
	StrategyTag string
	IsOpposite  bool
	CreatedAt   time.Time
}

// JournalEntry records a terminal outcome for one signal leg so state is
// reconstructable after a restart.
type JournalEntry struct {
	ID         int64
	SignalID   string
	IsOpposite bool
	State      string
	Detail     string
	RecordedAt time.Time
}
