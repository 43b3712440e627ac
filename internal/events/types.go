package events

// Event enumerates high-level topics inside the execution engine.
type Event string

const (
	EventSignalReceived   Event = "signal.received"
	EventOrderSubmitted   Event = "order.submitted"
	EventOrderAccepted    Event = "order.accepted"
	EventOrderRejected    Event = "order.rejected"
	EventOrderCancelled   Event = "order.cancelled"
	EventPositionOpened   Event = "position.opened"
	EventPositionModified Event = "position.sltp_modified"
	EventPositionClosed   Event = "position.closed"
	EventOrphanWatch      Event = "watch.orphaned"
)
