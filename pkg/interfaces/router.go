package interfaces

// EventSink receives connection lifecycle events from the transport and
// processes them in arrival order.
type EventSink interface {
	// Inbound queues one text frame read from a connection.
	Inbound(connectionID string, data []byte) error

	// Closed reports that a connection is gone. Implementations must
	// treat it like an explicit deregister of the connection's window.
	Closed(connectionID string) error
}
