package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelstreet/virtualpytest-sub008/pkg/devicelock"
)

// Manager manages device-control sessions in memory. The lock coordinator
// remains the single source of truth for exclusivity; the manager keeps the
// metadata alongside it and guarantees both move together.
type Manager struct {
	locks *devicelock.Coordinator

	mu       sync.Mutex
	sessions map[string]*Session // device_key → session
	now      func() time.Time
}

// NewManager creates a session manager over the lock coordinator.
func NewManager(locks *devicelock.Coordinator) *Manager {
	return &Manager{
		locks:    locks,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// TakeControl locks the device and opens a control session for owner.
// Fails when another session already holds the device.
func (m *Manager) TakeControl(hostName, deviceID, owner, scriptName string) (Session, error) {
	deviceKey := devicelock.DeviceKey(hostName, deviceID)
	sessionID := uuid.NewString()

	if !m.locks.Lock(deviceKey, sessionID) {
		return Session{}, fmt.Errorf("device %s is controlled by another session", deviceKey)
	}

	now := m.now()
	s := &Session{
		ID:           sessionID,
		DeviceKey:    deviceKey,
		HostName:     hostName,
		DeviceID:     deviceID,
		Owner:        owner,
		ScriptName:   scriptName,
		CreatedAt:    now,
		LastActivity: now,
	}

	m.mu.Lock()
	m.sessions[deviceKey] = s
	m.mu.Unlock()

	return *s, nil
}

// ReleaseControl closes the session and unlocks the device. Presenting the
// wrong session id is a silent no-op, matching the lock coordinator: one
// client cannot release another's device.
func (m *Manager) ReleaseControl(deviceKey, sessionID string) {
	m.mu.Lock()
	if s, ok := m.sessions[deviceKey]; ok && s.ID == sessionID {
		delete(m.sessions, deviceKey)
	}
	m.mu.Unlock()

	m.locks.Unlock(deviceKey, sessionID)
}

// Touch refreshes the session's activity timestamp. Used by the host on
// every controller call so active sessions never expire as stale.
func (m *Manager) Touch(deviceKey, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[deviceKey]; ok && s.ID == sessionID {
		s.LastActivity = m.now()
	}
}

// Get returns a copy of the session holding deviceKey.
func (m *Manager) Get(deviceKey string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[deviceKey]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// List returns copies of all open sessions, ordered by device key.
func (m *Manager) List() []Session {
	m.mu.Lock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceKey < out[j].DeviceKey })
	return out
}

// ExpireStale releases sessions idle longer than maxAge and returns how many
// were released. Called by the cleanup service.
func (m *Manager) ExpireStale(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	var stale []*Session
	for key, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.locks.Unlock(s.DeviceKey, s.ID)
	}
	return len(stale)
}
