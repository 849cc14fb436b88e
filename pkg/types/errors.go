package types

import "errors"

// Payload validation errors. Each maps to an invalid_payload error frame.
var (
	ErrMissingPayload           = errors.New("payload is required")
	ErrInvalidUserID            = errors.New("userId must be 1-128 characters: letters, digits, '_', '-', ':', '.'")
	ErrInvalidWindowID          = errors.New("windowId must be 1-128 characters: letters, digits, '_', '-', ':', '.'")
	ErrInvalidCaseID            = errors.New("caseId must be 1-128 printable characters")
	ErrInvalidPatientIdentifier = errors.New("patientIdentifier must be at most 256 printable characters")
	ErrInvalidTimestamp         = errors.New("timestamp must be non-negative epoch milliseconds")
)
