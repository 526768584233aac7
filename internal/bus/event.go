package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dotted names grouped by namespace: "transport.*" for inbound
// wire events and connection state changes, "outbox.*" for delivery
// lifecycle, "chat.*" for conversation-list mutations, "notify.*" for
// user-facing toasts.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
