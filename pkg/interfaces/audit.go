package interfaces

import "fdp/pkg/types"

// AuditRecorder receives protocol events for the safety trail.
// Record must not block the caller.
type AuditRecorder interface {
	Record(event types.AuditEvent)
}

// NoopAuditRecorder discards every event. Used when auditing is disabled.
type NoopAuditRecorder struct{}

func (NoopAuditRecorder) Record(types.AuditEvent) {}
