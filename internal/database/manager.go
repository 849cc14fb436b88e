package database

import (
	"context"
	"database/sql"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	dbconfig "fdp/pkg/database"
	"fdp/pkg/interfaces"
	"fdp/pkg/types"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 1000
)

// ErrManagerClosed is returned by reads after Close.
var ErrManagerClosed = errors.New("audit database is closed")

// Options tunes the audit writer.
type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// Manager is the SQLite-backed audit trail. Record never blocks: events go
// onto a bounded queue drained by a single writer goroutine, and events that
// do not fit are counted as dropped.
type Manager struct {
	db      *sql.DB
	clock   clock.Clock
	logger  *zap.Logger
	timeout time.Duration
	entropy io.Reader

	queue   chan types.AuditEvent
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	written atomic.Int64
}

var _ interfaces.AuditStore = (*Manager)(nil)

// NewManager opens the database, migrates it and starts the writer.
func NewManager(cfg *dbconfig.Config, opts Options, clk clock.Clock, logger *zap.Logger) (*Manager, error) {
	if opts.QueueSize <= 0 {
		return nil, errors.New("audit queue size must be positive")
	}
	if opts.WriteTimeout <= 0 {
		return nil, errors.New("audit write timeout must be positive")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := dbconfig.Open(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open audit database %s", cfg.DatabasePath)
	}

	m := &Manager{
		db:      db,
		clock:   clk,
		logger:  logger.Named("audit"),
		timeout: opts.WriteTimeout,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(clk.Now().UnixNano())), 0),
		queue:   make(chan types.AuditEvent, opts.QueueSize),
	}

	m.wg.Add(1)
	go m.writeLoop()

	m.logger.Info("audit database ready", zap.String("path", cfg.DatabasePath))
	return m, nil
}

// Record queues an event for writing.
func (m *Manager) Record(event types.AuditEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		m.dropped.Add(1)
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.clock.Now()
	}

	select {
	case m.queue <- event:
	default:
		if m.dropped.Add(1) == 1 {
			m.logger.Warn("audit queue full, dropping events", zap.Int("queue_size", cap(m.queue)))
		}
	}
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for event := range m.queue {
		if event.ID == "" {
			event.ID = ulid.MustNew(ulid.Timestamp(event.OccurredAt), m.entropy).String()
		}
		if err := m.insert(event); err != nil {
			m.logger.Error("audit write failed",
				zap.String("kind", string(event.Kind)),
				zap.String("event_id", event.ID),
				zap.Error(err))
			continue
		}
		m.written.Add(1)
	}
}

func (m *Manager) insert(event types.AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, occurred_at, kind, user_id, window_id, connection_id, warning_type, case_count, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		types.TimeToMillis(event.OccurredAt),
		string(event.Kind),
		event.UserID,
		event.WindowID,
		event.ConnectionID,
		string(event.WarningType),
		event.CaseCount,
		event.Detail,
	)
	return errors.Wrap(err, "insert audit event")
}

// Recent returns up to limit events, newest first. A non-positive limit
// selects the default page size.
func (m *Manager) Recent(ctx context.Context, limit int) ([]types.AuditEvent, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, occurred_at, kind, user_id, window_id, connection_id, warning_type, case_count, detail
		FROM audit_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query audit events")
	}
	defer func() { _ = rows.Close() }()

	events := make([]types.AuditEvent, 0, limit)
	for rows.Next() {
		var (
			event       types.AuditEvent
			occurredAt  int64
			kind        string
			warningType string
		)
		err := rows.Scan(
			&event.ID,
			&occurredAt,
			&kind,
			&event.UserID,
			&event.WindowID,
			&event.ConnectionID,
			&warningType,
			&event.CaseCount,
			&event.Detail,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scan audit event")
		}
		event.OccurredAt = types.MillisToTime(occurredAt)
		event.Kind = types.AuditEventKind(kind)
		event.WarningType = types.WarningType(warningType)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate audit events")
	}
	return events, nil
}

// HealthCheck pings the database and reads from the audit table.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	if err := m.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "audit database ping failed")
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&count); err != nil {
		return errors.Wrap(err, "audit database read failed")
	}
	return nil
}

// Stats reports writer counters.
func (m *Manager) Stats() map[string]int64 {
	return map[string]int64{
		"queued":  int64(len(m.queue)),
		"written": m.written.Load(),
		"dropped": m.dropped.Load(),
	}
}

// Dropped returns how many events were discarded.
func (m *Manager) Dropped() int64 {
	return m.dropped.Load()
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Close stops accepting events, writes everything already queued and
// closes the database. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return errors.Wrap(err, "close audit database")
	}
	m.logger.Info("audit database closed",
		zap.Int64("written", m.written.Load()),
		zap.Int64("dropped", m.dropped.Load()))
	return nil
}
