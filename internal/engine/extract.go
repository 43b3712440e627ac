package engine

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// EventKind is the normalized lifecycle event type.
type EventKind string

const (
	KindAccepted  EventKind = "ACCEPTED"
	KindRejected  EventKind = "REJECTED"
	KindFilled    EventKind = "FILLED"
	KindCancelled EventKind = "CANCELLED"
	KindExpired   EventKind = "EXPIRED"
	KindModified  EventKind = "MODIFIED"
	KindClosed    EventKind = "CLOSED"
	KindUnknown   EventKind = "UNKNOWN"
)

// ExecutionEvent is one normalized lifecycle notification extracted
// from a raw stream frame. Zero-valued fields were absent in the frame.
type ExecutionEvent struct {
	Kind       EventKind
	OrderID    string
	PositionID string
	Symbol     string
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Reason     string
}

// ParseExecutionEvent probes a raw frame without binding to a fixed
// schema. The venue bridge mixes event shapes on one stream and renames
// fields between them, so each logical field is resolved from a list of
// candidate keys, first hit wins.
func ParseExecutionEvent(payload []byte) (ExecutionEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ExecutionEvent{}, errors.Wrap(err, "decode event frame")
	}

	ev := ExecutionEvent{
		Kind:       classifyKind(stringField(fields, "type", "event", "e", "kind", "status")),
		OrderID:    stringField(fields, "orderId", "order_id", "id"),
		PositionID: stringField(fields, "positionId", "position_id", "posId", "ticket"),
		Symbol:     stringField(fields, "symbol", "instrument", "asset"),
		Price:      floatField(fields, "price", "fillPrice", "fill_price", "avgPrice", "closePrice", "close_price"),
		StopLoss:   floatField(fields, "stopLoss", "stop_loss", "sl"),
		TakeProfit: floatField(fields, "takeProfit", "take_profit", "tp"),
		Reason:     stringField(fields, "reason", "rejectReason", "message"),
	}
	if ev.Kind == KindUnknown && ev.OrderID == "" && ev.PositionID == "" {
		return ev, errors.New("frame carries no recognizable execution fields")
	}
	return ev, nil
}

func classifyKind(raw string) EventKind {
	switch strings.ToUpper(raw) {
	case "ACCEPTED", "NEW", "PLACED", "PENDING":
		return KindAccepted
	case "REJECTED", "REJECT":
		return KindRejected
	case "FILLED", "FILL", "EXECUTED", "OPENED":
		return KindFilled
	case "CANCELLED", "CANCELED", "CANCEL":
		return KindCancelled
	case "EXPIRED":
		return KindExpired
	case "MODIFIED", "UPDATED", "AMENDED", "SLTP_MODIFIED":
		return KindModified
	case "CLOSED", "CLOSE":
		return KindClosed
	default:
		return KindUnknown
	}
}

// stringField resolves the first present candidate key. Numeric ids are
// accepted and rendered as their decimal text.
func stringField(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func floatField(fields map[string]json.RawMessage, keys ...string) float64 {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
