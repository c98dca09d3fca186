package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/virtualpytest-sub008/pkg/devicelock"
)

func TestTakeControl_LocksDevice(t *testing.T) {
	locks := devicelock.NewCoordinator()
	m := NewManager(locks)

	s, err := m.TakeControl("host1", "dev1", "operator@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "host1:dev1", s.DeviceKey)
	assert.True(t, locks.IsLocked("host1:dev1"))

	_, err = m.TakeControl("host1", "dev1", "someone-else", "")
	assert.Error(t, err, "second take on the same device must fail")

	// A different device on the same host is independent.
	_, err = m.TakeControl("host1", "dev2", "someone-else", "")
	assert.NoError(t, err)
}

func TestReleaseControl_RequiresMatchingSession(t *testing.T) {
	locks := devicelock.NewCoordinator()
	m := NewManager(locks)

	s, err := m.TakeControl("host1", "dev1", "", "goto_live")
	require.NoError(t, err)

	m.ReleaseControl(s.DeviceKey, "wrong-session-id")
	assert.True(t, locks.IsLocked(s.DeviceKey), "wrong session id must not release")
	_, ok := m.Get(s.DeviceKey)
	assert.True(t, ok)

	m.ReleaseControl(s.DeviceKey, s.ID)
	assert.False(t, locks.IsLocked(s.DeviceKey))
	_, ok = m.Get(s.DeviceKey)
	assert.False(t, ok)
}

func TestList_OrderedByDeviceKey(t *testing.T) {
	m := NewManager(devicelock.NewCoordinator())

	_, err := m.TakeControl("hostB", "dev1", "", "")
	require.NoError(t, err)
	_, err = m.TakeControl("hostA", "dev1", "", "")
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "hostA:dev1", list[0].DeviceKey)
	assert.Equal(t, "hostB:dev1", list[1].DeviceKey)
}

func TestExpireStale_ReleasesLock(t *testing.T) {
	locks := devicelock.NewCoordinator()
	m := NewManager(locks)

	current := time.Now()
	m.now = func() time.Time { return current }

	s, err := m.TakeControl("host1", "dev1", "", "")
	require.NoError(t, err)

	// Touch keeps the session alive across the age threshold.
	current = current.Add(20 * time.Minute)
	m.Touch(s.DeviceKey, s.ID)
	current = current.Add(20 * time.Minute)
	assert.Equal(t, 0, m.ExpireStale(30*time.Minute))
	assert.True(t, locks.IsLocked(s.DeviceKey))

	current = current.Add(31 * time.Minute)
	assert.Equal(t, 1, m.ExpireStale(30*time.Minute))
	assert.False(t, locks.IsLocked(s.DeviceKey))
}
