package router

import "errors"

// Frame-level errors. Each maps to a wire error code; none closes the connection.
var (
	ErrMalformedFrame     = errors.New("frame is not a JSON object with a type")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMissingPayload     = errors.New("message payload is required")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
)
