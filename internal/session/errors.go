package session

import "errors"

// Session awareness errors. Not-found conditions are not errors: the store
// and manager report them through booleans and empty results.
var (
	ErrConnectionLimitExceeded = errors.New("maximum open windows per user exceeded")
	ErrInvalidRegistration     = errors.New("registration requires connection, user, window and case IDs")
)
