package types

import "time"

// AuditEventKind names a protocol event recorded in the safety trail.
type AuditEventKind string

const (
	AuditRegister        AuditEventKind = "register"
	AuditDeregister      AuditEventKind = "deregister"
	AuditConnectionClose AuditEventKind = "connection_close"
	AuditStaleCleanup    AuditEventKind = "stale_cleanup"
	AuditWarning         AuditEventKind = "warning"
	AuditRefused         AuditEventKind = "refused"
)

// AuditEvent is one row of the safety trail. It deliberately carries no
// case IDs or patient identifiers; CaseCount is the only case-related field.
type AuditEvent struct {
	ID           string         `json:"id"`
	OccurredAt   time.Time      `json:"occurredAt"`
	Kind         AuditEventKind `json:"kind"`
	UserID       string         `json:"userId,omitempty"`
	WindowID     string         `json:"windowId,omitempty"`
	ConnectionID string         `json:"connectionId,omitempty"`
	WarningType  WarningType    `json:"warningType,omitempty"`
	CaseCount    int            `json:"caseCount"`
	Detail       string         `json:"detail,omitempty"`
}
