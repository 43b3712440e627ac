package common

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the flipped side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes the basic order types the venue accepts.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// OrderStatus normalizes venue status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusAccepted OrderStatus = "ACCEPTED"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// Spot is a best bid/ask quote.
type Spot struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// OrderRequest captures an order intent to be sent to the venue.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Price      float64 // required for LIMIT/STOP, ignored for MARKET
	StopLoss   float64 // 0 means not set
	TakeProfit float64 // 0 means not set
	Volume     float64 // 0 means venue default lot
	ClientID   string  // client order id, engine-assigned
}

// OrderResult returns the venue ack.
type OrderResult struct {
	OrderID    string
	PositionID string // set when the order filled immediately
	Status     OrderStatus
	FillPrice  float64 // actual price for immediate fills
}

// RawEvent is one frame from the venue's asynchronous event stream.
// Payload shapes vary between event kinds; classification happens in
// the engine, not here.
type RawEvent struct {
	Payload  []byte
	Received time.Time
}
