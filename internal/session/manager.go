package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"fdp/pkg/interfaces"
	"fdp/pkg/types"
)

// Config holds the protocol limits the manager enforces.
type Config struct {
	HeartbeatTimeout      time.Duration
	MaxConnectionsPerUser int // 0 disables the limit
}

// DefaultConfig returns 90s heartbeat timeout (three missed 30s heartbeats)
// and eight windows per user.
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout:      90 * time.Second,
		MaxConnectionsPerUser: 8,
	}
}

// Broadcast is one outbound frame with its recipients. Exactly one of
// Warning and Sync is set.
type Broadcast struct {
	Warning       *types.SessionWarning
	Sync          []types.RegistrationInfo
	ConnectionIDs []string
}

// Result is returned by every mutating manager call so the transport can
// deliver deterministically instead of re-deriving state. Broadcasts are in
// emission order.
type Result struct {
	Registration *types.Registration
	Broadcasts   []Broadcast
}

// Warnings returns the warnings carried by the result.
func (r Result) Warnings() []types.SessionWarning {
	var warnings []types.SessionWarning
	for _, b := range r.Broadcasts {
		if b.Warning != nil {
			warnings = append(warnings, *b.Warning)
		}
	}
	return warnings
}

// AffectedConnections returns every connection that receives a frame, deduplicated.
func (r Result) AffectedConnections() []string {
	return unionConnections(r.Broadcasts)
}

// CleanupResult reports a stale sweep.
type CleanupResult struct {
	Removed       []types.Registration
	AffectedUsers []string
	Broadcasts    []Broadcast
}

// Manager holds the protocol decision logic. Calls are expected to be
// serialized by the hub loop so warnings follow event order.
type Manager struct {
	store  *Store
	clock  clock.Clock
	config Config
	audit  interfaces.AuditRecorder
	logger *zap.Logger
}

// NewManager creates a session manager. Nil audit and logger are replaced by no-ops.
func NewManager(store *Store, clk clock.Clock, cfg Config, audit interfaces.AuditRecorder, logger *zap.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if audit == nil {
		audit = interfaces.NoopAuditRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		clock:  clk,
		config: cfg,
		audit:  audit,
		logger: logger,
	}
}

// Store exposes the underlying registry for read-only status queries.
func (m *Manager) Store() *Store {
	return m.store
}

// Register stores a window registration. When the user now has more than one
// distinct case, a multi-case warning targets every connection the user owns.
// If the user already had other windows open, the new connection first
// receives a sync of the user's registrations.
func (m *Manager) Register(reg types.Registration) (Result, error) {
	if reg.ConnectionID == "" || reg.UserID == "" || reg.WindowID == "" || reg.CaseID == "" {
		return Result{}, ErrInvalidRegistration
	}

	existing := m.store.GetUserRegistrations(reg.UserID)
	if m.config.MaxConnectionsPerUser > 0 {
		others := 0
		for _, r := range existing {
			if r.WindowID != reg.WindowID && r.ConnectionID != reg.ConnectionID {
				others++
			}
		}
		if others >= m.config.MaxConnectionsPerUser {
			m.record(types.AuditEvent{
				Kind:         types.AuditRefused,
				UserID:       reg.UserID,
				WindowID:     reg.WindowID,
				ConnectionID: reg.ConnectionID,
				CaseCount:    len(casesFrom(existing)),
				Detail:       "connection limit exceeded",
			})
			m.logger.Warn("registration refused: window limit reached",
				zap.String("user_id", reg.UserID),
				zap.String("window_id", reg.WindowID),
				zap.Int("limit", m.config.MaxConnectionsPerUser))
			return Result{}, ErrConnectionLimitExceeded
		}
	}

	before := len(casesFrom(existing))
	displaced := m.store.Register(reg)

	var result Result
	// A displaced registration may belong to another user when a connection
	// re-registers under a different identity; that user needs a recompute too.
	for _, prev := range displaced {
		if prev.UserID != reg.UserID {
			result.Broadcasts = append(result.Broadcasts, m.recomputeAfterRemoval(prev)...)
		}
	}

	stored, _ := m.store.Get(reg.WindowID, reg.UserID)
	result.Registration = &stored

	regs := m.store.GetUserRegistrations(reg.UserID)
	if len(regs) > 1 {
		infos := make([]types.RegistrationInfo, 0, len(regs))
		for i := range regs {
			infos = append(infos, regs[i].Info())
		}
		result.Broadcasts = append(result.Broadcasts, Broadcast{
			Sync:          infos,
			ConnectionIDs: []string{reg.ConnectionID},
		})
	}
	result.Broadcasts = append(result.Broadcasts, m.recompute(reg.UserID, before)...)

	m.record(types.AuditEvent{
		Kind:         types.AuditRegister,
		UserID:       reg.UserID,
		WindowID:     reg.WindowID,
		ConnectionID: reg.ConnectionID,
		CaseCount:    len(casesFrom(regs)),
	})
	m.logger.Info("window registered",
		zap.String("user_id", reg.UserID),
		zap.String("window_id", reg.WindowID),
		zap.String("connection_id", reg.ConnectionID),
		zap.String("viewer_type", reg.ViewerType),
		zap.Int("open_windows", len(regs)))

	return result, nil
}

// Deregister removes a window explicitly. connectionID identifies the sender and
// scopes the lookup to its user when the sender is registered; otherwise the
// store scans all users for the window.
func (m *Manager) Deregister(connectionID, windowID string) Result {
	userID := ""
	if own, ok := m.store.GetByConnection(connectionID); ok {
		userID = own.UserID
	}

	before := 0
	if existing, ok := m.store.Get(windowID, userID); ok {
		before = len(m.store.GetUserCases(existing.UserID))
	}

	removed, ok := m.store.Deregister(windowID, userID)
	if !ok {
		return Result{}
	}
	return m.afterRemoval(removed, before, types.AuditDeregister, connectionID)
}

// HandleConnectionClose treats a vanished connection exactly like an explicit
// deregister of the window it owned.
func (m *Manager) HandleConnectionClose(connectionID string) Result {
	existing, ok := m.store.GetByConnection(connectionID)
	if !ok {
		return Result{}
	}
	before := len(m.store.GetUserCases(existing.UserID))

	removed, ok := m.store.DeregisterByConnection(connectionID)
	if !ok {
		return Result{}
	}
	return m.afterRemoval(removed, before, types.AuditConnectionClose, connectionID)
}

// Heartbeat refreshes liveness for a window. It reports false when the window
// is not registered, which the transport acknowledges as a no-op.
func (m *Manager) Heartbeat(connectionID, windowID string) bool {
	userID := ""
	if own, ok := m.store.GetByConnection(connectionID); ok {
		userID = own.UserID
	}
	return m.store.UpdateHeartbeat(windowID, userID)
}

// ResolveUser returns the user owning a connection. A connection without a
// registration acts for nobody, so windowID is never used to borrow another
// user's identity.
func (m *Manager) ResolveUser(connectionID string) (string, bool) {
	own, ok := m.store.GetByConnection(connectionID)
	if !ok {
		return "", false
	}
	return own.UserID, true
}

// HandleFocusChange runs when the workflow declares that windowID should now
// show newCaseID. If the window still displays a different case while another
// of the user's windows already holds newCaseID, the window is looking at the
// wrong glass: a case-mismatch warning is scoped to that window's connection.
func (m *Manager) HandleFocusChange(userID, windowID, newCaseID string) Result {
	reg, ok := m.store.Get(windowID, userID)
	if !ok {
		return Result{}
	}
	m.store.UpdateHeartbeat(windowID, reg.UserID)
	result := Result{Registration: &reg}

	if reg.CaseID == newCaseID {
		return result
	}

	var holders []types.Registration
	for _, other := range m.store.GetUserRegistrations(reg.UserID) {
		if other.WindowID != windowID && other.CaseID == newCaseID {
			holders = append(holders, other)
		}
	}
	if len(holders) == 0 {
		return result
	}

	current := types.CaseInfo{
		CaseID:            reg.CaseID,
		PatientIdentifier: reg.PatientIdentifier,
		WindowIDs:         []string{reg.WindowID},
		OpenedAt:          types.TimeToMillis(reg.OpenedAt),
	}
	expected := casesFrom(holders)[0]

	warning := &types.SessionWarning{
		Type:           types.WarningCaseMismatch,
		Cases:          []types.CaseInfo{current, expected},
		Message:        fmt.Sprintf("This window displays case %s but your workflow is now on case %s.", reg.CaseID, newCaseID),
		TargetWindowID: windowID,
	}
	result.Broadcasts = append(result.Broadcasts, Broadcast{
		Warning:       warning,
		ConnectionIDs: []string{reg.ConnectionID},
	})

	m.recordWarning(reg.UserID, reg.WindowID, reg.ConnectionID, warning)
	m.logger.Warn("case mismatch detected",
		zap.String("user_id", reg.UserID),
		zap.String("window_id", windowID),
		zap.String("connection_id", reg.ConnectionID))

	return result
}

// Cleanup removes stale registrations and recomputes warnings for every
// affected user. Each removed window whose connection is still open is told
// it went stale.
func (m *Manager) Cleanup() CleanupResult {
	stale := m.store.GetStaleRegistrations(m.config.HeartbeatTimeout)
	if len(stale) == 0 {
		return CleanupResult{Removed: []types.Registration{}}
	}

	before := make(map[string]int)
	for _, reg := range stale {
		if _, ok := before[reg.UserID]; !ok {
			before[reg.UserID] = len(m.store.GetUserCases(reg.UserID))
		}
	}

	removed := m.store.CleanupStale(m.config.HeartbeatTimeout)
	result := CleanupResult{Removed: removed}

	users := make(map[string]bool)
	for _, reg := range removed {
		users[reg.UserID] = true

		warning := &types.SessionWarning{
			Type: types.WarningStaleWindow,
			Cases: []types.CaseInfo{{
				CaseID:            reg.CaseID,
				PatientIdentifier: reg.PatientIdentifier,
				WindowIDs:         []string{reg.WindowID},
				OpenedAt:          types.TimeToMillis(reg.OpenedAt),
			}},
			Message:        "This window stopped reporting and is no longer covered by session awareness. Re-open the case to restore safety warnings.",
			TargetWindowID: reg.WindowID,
		}
		result.Broadcasts = append(result.Broadcasts, Broadcast{
			Warning:       warning,
			ConnectionIDs: []string{reg.ConnectionID},
		})

		m.record(types.AuditEvent{
			Kind:         types.AuditStaleCleanup,
			UserID:       reg.UserID,
			WindowID:     reg.WindowID,
			ConnectionID: reg.ConnectionID,
			CaseCount:    len(m.store.GetUserCases(reg.UserID)),
		})
	}

	for userID := range users {
		result.AffectedUsers = append(result.AffectedUsers, userID)
	}
	sort.Strings(result.AffectedUsers)

	for _, userID := range result.AffectedUsers {
		result.Broadcasts = append(result.Broadcasts, m.recompute(userID, before[userID])...)
	}

	m.logger.Info("stale registrations removed",
		zap.Int("removed", len(removed)),
		zap.Int("affected_users", len(result.AffectedUsers)))

	return result
}

func (m *Manager) afterRemoval(removed types.Registration, before int, kind types.AuditEventKind, connectionID string) Result {
	result := Result{Registration: &removed}
	result.Broadcasts = m.recompute(removed.UserID, before)

	m.record(types.AuditEvent{
		Kind:         kind,
		UserID:       removed.UserID,
		WindowID:     removed.WindowID,
		ConnectionID: connectionID,
		CaseCount:    len(m.store.GetUserCases(removed.UserID)),
	})
	m.logger.Info("window deregistered",
		zap.String("reason", string(kind)),
		zap.String("user_id", removed.UserID),
		zap.String("window_id", removed.WindowID),
		zap.String("connection_id", connectionID))

	return result
}

// recomputeAfterRemoval recomputes for a user whose window was displaced
// by another user's registration.
func (m *Manager) recomputeAfterRemoval(prev types.Registration) []Broadcast {
	remaining := m.store.GetUserRegistrations(prev.UserID)
	before := len(casesFrom(append(remaining, prev)))
	return m.recompute(prev.UserID, before)
}

// recompute derives the user's warning state from the registry. before is
// the user's distinct case count prior to the triggering event; a drop from
// more than one case to at most one sends the remaining connections a sync
// so they can clear their warning badge.
func (m *Manager) recompute(userID string, before int) []Broadcast {
	regs := m.store.GetUserRegistrations(userID)
	cases := casesFrom(regs)
	connections := m.store.GetUserConnections(userID)
	if len(connections) == 0 {
		return nil
	}

	if len(cases) > 1 {
		warning := &types.SessionWarning{
			Type:    types.WarningMultiCase,
			Cases:   cases,
			Message: fmt.Sprintf("You have %d different cases open across %d windows. Confirm each window shows the intended case.", len(cases), len(regs)),
		}
		m.recordWarning(userID, "", "", warning)
		m.logger.Warn("multi-case condition",
			zap.String("user_id", userID),
			zap.Int("cases", len(cases)),
			zap.Int("recipients", len(connections)))
		return []Broadcast{{Warning: warning, ConnectionIDs: connections}}
	}

	if before > 1 {
		infos := make([]types.RegistrationInfo, 0, len(regs))
		for i := range regs {
			infos = append(infos, regs[i].Info())
		}
		m.logger.Info("multi-case condition resolved", zap.String("user_id", userID))
		return []Broadcast{{Sync: infos, ConnectionIDs: connections}}
	}

	return nil
}

func (m *Manager) recordWarning(userID, windowID, connectionID string, w *types.SessionWarning) {
	m.record(types.AuditEvent{
		Kind:         types.AuditWarning,
		UserID:       userID,
		WindowID:     windowID,
		ConnectionID: connectionID,
		WarningType:  w.Type,
		CaseCount:    len(w.Cases),
	})
}

func (m *Manager) record(event types.AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.clock.Now()
	}
	m.audit.Record(event)
}

func unionConnections(broadcasts []Broadcast) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, b := range broadcasts {
		for _, id := range b.ConnectionIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
