package devicelock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockUnlockCycle(t *testing.T) {
	c := NewCoordinator()
	key := DeviceKey("host1", "device1")

	assert.False(t, c.IsLocked(key))
	assert.True(t, c.Lock(key, "session-a"))
	assert.True(t, c.IsLocked(key))

	// Another session cannot steal the lock.
	assert.False(t, c.Lock(key, "session-b"))

	c.Unlock(key, "session-a")
	assert.False(t, c.IsLocked(key))
	assert.True(t, c.Lock(key, "session-b"))
}

func TestUnlock_WrongSessionIsNoOp(t *testing.T) {
	c := NewCoordinator()
	key := DeviceKey("host1", "device1")

	c.Lock(key, "session-a")
	c.Unlock(key, "session-b")
	assert.True(t, c.IsLocked(key))

	c.Unlock(key, "session-a")
	assert.False(t, c.IsLocked(key))
}

func TestUnlock_UnheldKeyIsNoOp(t *testing.T) {
	c := NewCoordinator()
	c.Unlock(DeviceKey("host1", "device1"), "session-a")
}

func TestLock_ExactlyOneWinnerUnderContention(t *testing.T) {
	c := NewCoordinator()
	key := DeviceKey("host1", "device1")

	const attempts = 50
	var wg sync.WaitGroup
	wins := make([]bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wins[i] = c.Lock(key, "session-"+string(rune('a'+i%26)))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.True(t, c.IsLocked(key))
}

func TestDistinctDevicesLockIndependently(t *testing.T) {
	c := NewCoordinator()
	assert.True(t, c.Lock(DeviceKey("host1", "device1"), "s1"))
	assert.True(t, c.Lock(DeviceKey("host1", "device2"), "s1"))
	assert.True(t, c.Lock(DeviceKey("host2", "device1"), "s2"))
}

func TestExpireStale(t *testing.T) {
	c := NewCoordinator()
	base := time.Now()

	c.now = func() time.Time { return base.Add(-time.Hour) }
	c.Lock(DeviceKey("host1", "stale"), "s1")

	c.now = func() time.Time { return base }
	c.Lock(DeviceKey("host1", "fresh"), "s2")

	released := c.ExpireStale(30 * time.Minute)
	assert.Equal(t, 1, released)
	assert.False(t, c.IsLocked(DeviceKey("host1", "stale")))
	assert.True(t, c.IsLocked(DeviceKey("host1", "fresh")))
}
