package common

import (
	"errors"
	"fmt"
	"strings"
)

// RejectReason classifies explicit venue rejection codes.
type RejectReason string

const (
	RejectInvalidStops       RejectReason = "INVALID_STOPS"
	RejectInsufficientMargin RejectReason = "INSUFFICIENT_MARGIN"
	RejectMarketClosed       RejectReason = "MARKET_CLOSED"
	RejectUnknown            RejectReason = "UNKNOWN"
)

// VenueError is an explicit rejection returned by the venue.
type VenueError struct {
	Code    string
	Reason  RejectReason
	Message string
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue rejected: %s (%s): %s", e.Code, e.Reason, e.Message)
}

// ClassifyRejectCode maps a raw venue code to a RejectReason.
func ClassifyRejectCode(code string) RejectReason {
	switch strings.ToUpper(code) {
	case "INVALID_STOPS", "INVALID_SL", "INVALID_TP", "STOPS_REJECTED":
		return RejectInvalidStops
	case "INSUFFICIENT_MARGIN", "NO_MONEY", "MARGIN_CALL":
		return RejectInsufficientMargin
	case "MARKET_CLOSED", "TRADE_DISABLED", "OFF_QUOTES":
		return RejectMarketClosed
	default:
		return RejectUnknown
	}
}

// RejectReasonOf extracts the rejection classification from err, or
// RejectUnknown with ok=false when err is not an explicit venue rejection.
func RejectReasonOf(err error) (RejectReason, bool) {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return RejectUnknown, false
}

// ErrTimeout marks a venue round-trip that got no response within the
// bounded wait. Retried with backoff at the client layer; opaque above it.
var ErrTimeout = errors.New("venue request timed out")
