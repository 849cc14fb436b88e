package fdp

import "errors"

var (
	ErrInvalidConfig  = errors.New("invalid fdp config")
	ErrInvalidCase    = errors.New("case context requires a case ID")
	ErrNoActions      = errors.New("modal requires at least one action")
	ErrNoModal        = errors.New("no modal is open")
	ErrUnknownAction  = errors.New("unknown modal action")
	ErrNoSpeaker      = errors.New("audio mode requires a speaker")
	ErrSessionStarted = errors.New("session already started")
)
