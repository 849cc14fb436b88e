package interfaces

// Connection represents one WebSocket client connection.
// Implementations must make WriteJSON safe for concurrent callers.
type Connection interface {
	// WriteJSON queues v for delivery. Frames written to one connection
	// are delivered in call order.
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources.
	Close() error

	// GetID returns the server-assigned connection ID.
	GetID() string
}

// Sender delivers outbound frames to connections by ID.
type Sender interface {
	// Send queues msg on the connection. Unknown IDs return an error;
	// callers log it and continue with the remaining recipients.
	Send(connectionID string, msg interface{}) error
}
