package session

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"fdp/pkg/types"
)

// windowKey locates a registration in the two-level map.
type windowKey struct {
	userID   string
	windowID string
}

// Store is the authoritative in-memory registry of window registrations.
// Lookups never fail: absence is reported as false, nil or an empty slice.
// All methods return copies so callers cannot mutate registry state.
type Store struct {
	mu           sync.RWMutex
	clock        clock.Clock
	users        map[string]map[string]*types.Registration // userID -> windowID -> Registration
	byConnection map[string]windowKey                      // connectionID -> (userID, windowID)
}

// NewStore creates an empty store. A nil clock uses the wall clock.
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock:        clk,
		users:        make(map[string]map[string]*types.Registration),
		byConnection: make(map[string]windowKey),
	}
}

// Register stores reg and returns any registrations it displaced: the
// connection's previous registration (a connection owns at most one) and a
// prior registration of the same window from another connection.
func (s *Store) Register(reg types.Registration) []types.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if reg.OpenedAt.IsZero() {
		reg.OpenedAt = now
	}
	reg.LastHeartbeat = now

	key := windowKey{userID: reg.UserID, windowID: reg.WindowID}
	var displaced []types.Registration

	if prevKey, ok := s.byConnection[reg.ConnectionID]; ok && prevKey != key {
		if prev, ok := s.removeLocked(prevKey); ok {
			displaced = append(displaced, prev)
		}
	}

	if existing, ok := s.lookupLocked(key); ok && existing.ConnectionID != reg.ConnectionID {
		if prev, ok := s.removeLocked(key); ok {
			displaced = append(displaced, prev)
		}
	}

	windows, ok := s.users[reg.UserID]
	if !ok {
		windows = make(map[string]*types.Registration)
		s.users[reg.UserID] = windows
	}
	stored := reg
	windows[reg.WindowID] = &stored
	s.byConnection[reg.ConnectionID] = key

	return displaced
}

// Deregister removes a window's registration. With an empty userID the
// window is located by scanning every user.
func (s *Store) Deregister(windowID, userID string) (types.Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.findLocked(windowID, userID)
	if !ok {
		return types.Registration{}, false
	}
	return s.removeLocked(key)
}

// DeregisterByConnection removes the registration owned by a connection.
func (s *Store) DeregisterByConnection(connectionID string) (types.Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byConnection[connectionID]
	if !ok {
		return types.Registration{}, false
	}
	return s.removeLocked(key)
}

// UpdateHeartbeat refreshes a window's liveness timestamp.
func (s *Store) UpdateHeartbeat(windowID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.findLocked(windowID, userID)
	if !ok {
		return false
	}
	s.users[key.userID][key.windowID].LastHeartbeat = s.clock.Now()
	return true
}

// Get returns a window's registration. With an empty userID every user is scanned.
func (s *Store) Get(windowID, userID string) (types.Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.findLocked(windowID, userID)
	if !ok {
		return types.Registration{}, false
	}
	return *s.users[key.userID][key.windowID], true
}

// GetByConnection resolves a connection through the reverse index.
func (s *Store) GetByConnection(connectionID string) (types.Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.byConnection[connectionID]
	if !ok {
		return types.Registration{}, false
	}
	return s.lookupLocked(key)
}

// GetUserRegistrations returns a user's registrations ordered by open time.
func (s *Store) GetUserRegistrations(userID string) []types.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userRegistrationsLocked(userID)
}

// GetUserCases returns the user's distinct open cases, ordered by the
// earliest window that opened each one.
func (s *Store) GetUserCases(userID string) []types.CaseInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return casesFrom(s.userRegistrationsLocked(userID))
}

// GetUserConnections returns the IDs of every connection owning one of the user's windows.
func (s *Store) GetUserConnections(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regs := s.userRegistrationsLocked(userID)
	ids := make([]string, 0, len(regs))
	seen := make(map[string]bool, len(regs))
	for _, reg := range regs {
		if !seen[reg.ConnectionID] {
			seen[reg.ConnectionID] = true
			ids = append(ids, reg.ConnectionID)
		}
	}
	return ids
}

// GetStaleRegistrations returns registrations whose last heartbeat is older than timeout.
func (s *Store) GetStaleRegistrations(timeout time.Duration) []types.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staleLocked(timeout)
}

// CleanupStale removes and returns every stale registration.
// A second call with no intervening heartbeats returns an empty slice.
func (s *Store) CleanupStale(timeout time.Duration) []types.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := s.staleLocked(timeout)
	for _, reg := range stale {
		s.removeLocked(windowKey{userID: reg.UserID, windowID: reg.WindowID})
	}
	return stale
}

// StoreStats summarizes registry contents for the status API.
type StoreStats struct {
	Users          int `json:"users"`
	Registrations  int `json:"registrations"`
	Connections    int `json:"registeredConnections"`
	MultiCaseUsers int `json:"multiCaseUsers"`
}

// Stats returns current registry counts.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		Users:       len(s.users),
		Connections: len(s.byConnection),
	}
	for userID, windows := range s.users {
		stats.Registrations += len(windows)
		if len(casesFrom(s.userRegistrationsLocked(userID))) > 1 {
			stats.MultiCaseUsers++
		}
	}
	return stats
}

func (s *Store) lookupLocked(key windowKey) (types.Registration, bool) {
	windows, ok := s.users[key.userID]
	if !ok {
		return types.Registration{}, false
	}
	reg, ok := windows[key.windowID]
	if !ok {
		return types.Registration{}, false
	}
	return *reg, true
}

// findLocked resolves a window to its key, scanning all users when userID is empty.
// The scan visits users in sorted order so the result is deterministic.
func (s *Store) findLocked(windowID, userID string) (windowKey, bool) {
	if userID != "" {
		key := windowKey{userID: userID, windowID: windowID}
		_, ok := s.lookupLocked(key)
		return key, ok
	}

	userIDs := make([]string, 0, len(s.users))
	for id := range s.users {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)
	for _, id := range userIDs {
		if _, ok := s.users[id][windowID]; ok {
			return windowKey{userID: id, windowID: windowID}, true
		}
	}
	return windowKey{}, false
}

func (s *Store) removeLocked(key windowKey) (types.Registration, bool) {
	windows, ok := s.users[key.userID]
	if !ok {
		return types.Registration{}, false
	}
	reg, ok := windows[key.windowID]
	if !ok {
		return types.Registration{}, false
	}

	delete(windows, key.windowID)
	if len(windows) == 0 {
		delete(s.users, key.userID)
	}
	if s.byConnection[reg.ConnectionID] == key {
		delete(s.byConnection, reg.ConnectionID)
	}
	return *reg, true
}

func (s *Store) userRegistrationsLocked(userID string) []types.Registration {
	windows := s.users[userID]
	regs := make([]types.Registration, 0, len(windows))
	for _, reg := range windows {
		regs = append(regs, *reg)
	}
	sortRegistrations(regs)
	return regs
}

func (s *Store) staleLocked(timeout time.Duration) []types.Registration {
	now := s.clock.Now()
	stale := []types.Registration{}
	for _, windows := range s.users {
		for _, reg := range windows {
			if now.Sub(reg.LastHeartbeat) > timeout {
				stale = append(stale, *reg)
			}
		}
	}
	sortRegistrations(stale)
	return stale
}

func sortRegistrations(regs []types.Registration) {
	sort.Slice(regs, func(i, j int) bool {
		if !regs[i].OpenedAt.Equal(regs[j].OpenedAt) {
			return regs[i].OpenedAt.Before(regs[j].OpenedAt)
		}
		if regs[i].UserID != regs[j].UserID {
			return regs[i].UserID < regs[j].UserID
		}
		return regs[i].WindowID < regs[j].WindowID
	})
}

// casesFrom groups sorted registrations by case ID, preserving first-seen order.
func casesFrom(regs []types.Registration) []types.CaseInfo {
	cases := []types.CaseInfo{}
	index := make(map[string]int, len(regs))
	for _, reg := range regs {
		i, ok := index[reg.CaseID]
		if !ok {
			index[reg.CaseID] = len(cases)
			cases = append(cases, types.CaseInfo{
				CaseID:            reg.CaseID,
				PatientIdentifier: reg.PatientIdentifier,
				WindowIDs:         []string{reg.WindowID},
				OpenedAt:          types.TimeToMillis(reg.OpenedAt),
			})
			continue
		}
		cases[i].WindowIDs = append(cases[i].WindowIDs, reg.WindowID)
	}
	return cases
}
