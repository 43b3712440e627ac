package common

import "context"

// Gateway abstracts the primary execution venue. The concrete wire
// protocol behind it is an implementation detail of the client.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	AmendPosition(ctx context.Context, positionID string, sl, tp float64) error
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetSpot(ctx context.Context, symbol string) (Spot, error)
	SubscribeSpot(symbol string) (<-chan Spot, error)
	Events() <-chan RawEvent
}
