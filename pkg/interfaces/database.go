package interfaces

import (
	"context"

	"fdp/pkg/types"
)

// AuditStore is the query side of the audit log.
type AuditStore interface {
	AuditRecorder

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]types.AuditEvent, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close flushes pending events and releases the store.
	Close() error
}
