package interfaces

import "errors"

// Common errors shared by Sender implementations.
var (
	ErrConnectionNotFound = errors.New("connection not found")
)
