package sessionclient

import "errors"

var (
	ErrClosed              = errors.New("session client is closed")
	ErrNotRegistered       = errors.New("window is not registered")
	ErrInvalidURL          = errors.New("invalid awareness service URL")
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrInvalidWindowID     = errors.New("invalid window ID")
)
