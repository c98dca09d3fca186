// Package devicelock serializes exclusive device access across scripts.
// Locks are process-local and never persisted; a host restart clears them.
package devicelock

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DeviceKey builds the canonical lock key for a device on a host.
func DeviceKey(hostName, deviceID string) string {
	return fmt.Sprintf("%s:%s", hostName, deviceID)
}

type lockEntry struct {
	sessionID string
	lockedAt  time.Time
}

// Coordinator is a process-local device_key -> session map guarded by one
// mutex.
type Coordinator struct {
	mu    sync.Mutex
	locks map[string]lockEntry

	logger *slog.Logger
	now    func() time.Time
}

// NewCoordinator creates an empty lock coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		locks:  make(map[string]lockEntry),
		logger: slog.Default().With("component", "devicelock"),
		now:    time.Now,
	}
}

// Lock atomically acquires the device for sessionID. Returns true iff no
// lock existed. Re-locking with the same session also fails; the holder
// already owns the device.
func (c *Coordinator) Lock(deviceKey, sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.locks[deviceKey]; held {
		return false
	}
	c.locks[deviceKey] = lockEntry{sessionID: sessionID, lockedAt: c.now()}
	c.logger.Info("Device locked", "device_key", deviceKey, "session_id", sessionID)
	return true
}

// Unlock releases the device only when sessionID matches the holder.
// A mismatch is a silent no-op so one client cannot release another's lock.
func (c *Coordinator) Unlock(deviceKey, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, held := c.locks[deviceKey]
	if !held || entry.sessionID != sessionID {
		return
	}
	delete(c.locks, deviceKey)
	c.logger.Info("Device unlocked", "device_key", deviceKey, "session_id", sessionID)
}

// IsLocked reports whether the device is currently held.
func (c *Coordinator) IsLocked(deviceKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, held := c.locks[deviceKey]
	return held
}

// ExpireStale force-releases locks held longer than maxAge and returns how
// many were released. Called by the cleanup service as a watchdog against
// crashed scripts that never unlocked.
func (c *Coordinator) ExpireStale(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	released := 0
	for key, entry := range c.locks {
		if entry.lockedAt.Before(cutoff) {
			delete(c.locks, key)
			released++
			c.logger.Warn("Expired stale device lock",
				"device_key", key,
				"session_id", entry.sessionID,
				"held_for", c.now().Sub(entry.lockedAt).String())
		}
	}
	return released
}
