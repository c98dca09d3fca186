package harness

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/virtualpytest-sub008/pkg/devicelock"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
)

const testTeam = "team-1"

func seedTree(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	tree := &models.NavigationTree{
		TreeID:            "tree-1",
		TeamID:            testTeam,
		Name:              "Horizon",
		UserinterfaceName: "horizon_android_tv",
		Nodes: []models.Node{
			{NodeID: "home", Label: "Home", NodeType: models.NodeTypeEntry},
		},
	}
	require.NoError(t, st.SaveTree(context.Background(), tree))
}

func newTestHarness(t *testing.T, st *store.MemoryStore) (*Harness, *devicelock.Coordinator) {
	t.Helper()
	locks := devicelock.NewCoordinator()
	h := New(Config{
		HostName: "host1",
		TeamID:   testTeam,
		Devices: []models.Device{
			{DeviceID: "device1", Name: "Living Room", Model: "android_tv"},
			{DeviceID: "device2", Name: "Bedroom", Model: "android_tv"},
		},
	}, st, navigation.NewCache(st), locks)
	return h, locks
}

func TestRun_SuccessPath(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)
	h, locks := newTestHarness(t, st)

	var sawDevice, sawTree string
	code := h.Run(context.Background(), "goto_live", nil,
		[]string{"horizon_android_tv"},
		func(_ context.Context, sc *ScriptContext) error {
			sawDevice = sc.Device.DeviceID
			sawTree = sc.TreeID
			sc.RecordStep(models.StepRecord{Success: true, Message: "navigated"})
			return nil
		})

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "device1", sawDevice)
	assert.Equal(t, "tree-1", sawTree)

	// Lock released after the run.
	assert.False(t, locks.IsLocked(devicelock.DeviceKey("host1", "device1")))

	// Script result persisted.
	result, err := st.FindRecentScriptResult(context.Background(), testTeam, "goto_live",
		time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "horizon_android_tv", result.UserinterfaceName)

	report := h.LastReport()
	require.NotNil(t, report)
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.TotalSteps)
	assert.Equal(t, 1, report.PassedSteps)
}

func TestRun_ScriptResultIDSetBeforeUserMain(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)
	h, _ := newTestHarness(t, st)

	var duringRun string
	code := h.Run(context.Background(), "goto_live", nil,
		[]string{"horizon_android_tv"},
		func(_ context.Context, sc *ScriptContext) error {
			// Execution records written by the script reference this id.
			duringRun = sc.ScriptResultID
			return nil
		})

	assert.Equal(t, ExitSuccess, code)
	assert.NotEmpty(t, duringRun)

	// One row total: the teardown write updates the initial record.
	results := st.AllScriptResults()
	require.Len(t, results, 1)
	assert.Equal(t, duringRun, results[0].ScriptResultID)
	assert.True(t, results[0].Success)
	require.NotNil(t, results[0].CompletedAt)
}

func TestRun_ScriptErrorStillRecordsAndUnlocks(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)
	h, locks := newTestHarness(t, st)

	code := h.Run(context.Background(), "goto_live", nil,
		[]string{"horizon_android_tv"},
		func(context.Context, *ScriptContext) error {
			return fmt.Errorf("navigation failed")
		})

	assert.Equal(t, ExitFailure, code)
	assert.False(t, locks.IsLocked(devicelock.DeviceKey("host1", "device1")))

	result, err := st.FindRecentScriptResult(context.Background(), testTeam, "goto_live",
		time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "navigation failed", result.ErrorMessage)
}

func TestRun_PanicIsContained(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)
	h, locks := newTestHarness(t, st)

	code := h.Run(context.Background(), "goto_live", nil,
		[]string{"horizon_android_tv"},
		func(context.Context, *ScriptContext) error {
			panic("boom")
		})

	assert.Equal(t, ExitFailure, code)
	assert.False(t, locks.IsLocked(devicelock.DeviceKey("host1", "device1")))
	assert.Contains(t, h.LastReport().ErrorMessage, "panicked")
}

func TestRun_InterruptExitsWith130(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)
	h, _ := newTestHarness(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	code := h.Run(ctx, "goto_live", nil,
		[]string{"horizon_android_tv"},
		func(context.Context, *ScriptContext) error {
			cancel()
			return nil
		})

	assert.Equal(t, ExitInterrupt, code)
}

func TestRun_ExplicitDeviceSelection(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)
	h, _ := newTestHarness(t, st)

	var sawDevice string
	code := h.Run(context.Background(), "goto_live", nil,
		[]string{"horizon_android_tv", "--device", "device2"},
		func(_ context.Context, sc *ScriptContext) error {
			sawDevice = sc.Device.DeviceID
			return nil
		})

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "device2", sawDevice)
}

func TestRun_UnknownDeviceFailsFast(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)
	h, _ := newTestHarness(t, st)

	ran := false
	code := h.Run(context.Background(), "goto_live", nil,
		[]string{"horizon_android_tv", "--device", "missing"},
		func(context.Context, *ScriptContext) error {
			ran = true
			return nil
		})

	assert.Equal(t, ExitFailure, code)
	assert.False(t, ran)
}

func TestRun_LockedDeviceFails(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)
	h, locks := newTestHarness(t, st)
	locks.Lock(devicelock.DeviceKey("host1", "device1"), "someone-else")

	code := h.Run(context.Background(), "goto_live", nil,
		[]string{"horizon_android_tv"},
		func(context.Context, *ScriptContext) error { return nil })

	assert.Equal(t, ExitFailure, code)
	// The foreign lock is untouched.
	assert.True(t, locks.IsLocked(devicelock.DeviceKey("host1", "device1")))
}

func TestRun_EnvValidationFailsFast(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)
	locks := devicelock.NewCoordinator()
	h := New(Config{
		HostName:    "host1",
		TeamID:      testTeam,
		Devices:     []models.Device{{DeviceID: "device1"}},
		ValidateEnv: func() error { return fmt.Errorf("SERVER_URL is not set") },
	}, st, navigation.NewCache(st), locks)

	code := h.Run(context.Background(), "goto_live", nil,
		[]string{"horizon_android_tv"},
		func(context.Context, *ScriptContext) error { return nil })

	assert.Equal(t, ExitFailure, code)
}

func TestRun_MissingUserinterfaceName(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)
	h, _ := newTestHarness(t, st)

	code := h.Run(context.Background(), "goto_live", nil, nil,
		func(context.Context, *ScriptContext) error { return nil })

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, h.LastReport().ErrorMessage, "userinterface_name")
}
