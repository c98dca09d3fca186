package scripts

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/virtualpytest-sub008/pkg/blocks"
	"github.com/angelstreet/virtualpytest-sub008/pkg/controller"
	"github.com/angelstreet/virtualpytest-sub008/pkg/devicelock"
	"github.com/angelstreet/virtualpytest-sub008/pkg/executor"
	"github.com/angelstreet/virtualpytest-sub008/pkg/harness"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
)

const testTeam = "team-1"

type fakeController struct {
	mu       sync.Mutex
	commands []string
	fail     map[string]bool
}

func (f *fakeController) ExecuteCommand(_ context.Context, command string, _ map[string]any) (controller.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	if f.fail[command] {
		return controller.Result{Success: false, Error: "rejected"}, nil
	}
	return controller.Result{Success: true}, nil
}

func (f *fakeController) ExecuteVerification(_ context.Context, _ models.Verification) (controller.Result, error) {
	return controller.Result{Success: true, Message: "matched"}, nil
}

func (f *fakeController) CaptureScreenshot(_ context.Context, name string) (string, error) {
	return "/captures/" + name + ".png", nil
}

type fixture struct {
	ctrl    *fakeController
	store   *store.MemoryStore
	harness *harness.Harness
	reg     *harness.ScriptRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := &fakeController{fail: map[string]bool{}}
	st := store.NewMemoryStore()

	st.PutAction(testTeam, models.Action{
		ID: "act-home-live", ActionType: "remote", Command: "press_key_LIVE",
	})
	require.NoError(t, st.SaveTree(context.Background(), &models.NavigationTree{
		TreeID:            "tree-1",
		TeamID:            testTeam,
		Name:              "Horizon",
		UserinterfaceName: "horizon_android_tv",
		Nodes: []models.Node{
			{NodeID: "home", Label: "Home", NodeType: models.NodeTypeEntry},
			{NodeID: "live", Label: "Live", NodeType: models.NodeTypeScreen},
		},
		Edges: []models.Edge{
			{EdgeID: "e1", FromNode: "home", ToNode: "live", ActionIDs: []string{"act-home-live"}},
		},
	}))

	cache := navigation.NewCache(st)
	actions := executor.NewActionExecutor(ctrl, st)
	verifications := executor.NewVerificationExecutor(ctrl, st)
	nav := executor.NewNavigationExecutor(cache, actions, verifications, nil)
	orch := executor.NewOrchestrator(actions, verifications, nav, blocks.NewRegistry(), ctrl)

	device := models.Device{DeviceID: "dev1", Name: "Living Room", Model: "android_tv"}
	h := harness.New(harness.Config{
		HostName: "host1",
		TeamID:   testTeam,
		Devices:  []models.Device{device},
	}, st, cache, devicelock.NewCoordinator())

	reg := harness.NewScriptRegistry()
	Register(reg, Deps{
		HostName:      "host1",
		TeamID:        testTeam,
		Cache:         cache,
		Orchestrators: map[string]*executor.Orchestrator{"dev1": orch},
	})
	return &fixture{ctrl: ctrl, store: st, harness: h, reg: reg}
}

func runBuiltin(t *testing.T, f *fixture, name string, argv []string) int {
	t.Helper()
	info, fn, ok := f.reg.Get(name)
	require.True(t, ok)
	return f.harness.Run(context.Background(), name, info.ArgDecls, argv, fn)
}

func TestGotoNode_Succeeds(t *testing.T) {
	f := newFixture(t)

	code := runBuiltin(t, f, "goto_node", []string{"horizon_android_tv", "--node", "live"})
	assert.Equal(t, harness.ExitSuccess, code)
	assert.Contains(t, f.ctrl.commands, "press_key_LIVE")

	results := f.store.AllScriptResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "goto_node", results[0].ScriptName)
}

func TestGotoNode_FailsOnUnreachableTarget(t *testing.T) {
	f := newFixture(t)

	code := runBuiltin(t, f, "goto_node", []string{"horizon_android_tv", "--node", "nowhere"})
	assert.Equal(t, harness.ExitFailure, code)

	results := f.store.AllScriptResults()
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}

func TestValidation_WalksEveryEdge(t *testing.T) {
	f := newFixture(t)

	code := runBuiltin(t, f, "validation", []string{"horizon_android_tv"})
	assert.Equal(t, harness.ExitSuccess, code)
	assert.Contains(t, f.ctrl.commands, "press_key_LIVE")

	report := f.harness.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 1, report.TotalSteps)
	assert.Equal(t, 1, report.PassedSteps)
}

func TestValidation_ReportsFailingTransitions(t *testing.T) {
	f := newFixture(t)
	f.ctrl.fail["press_key_LIVE"] = true

	code := runBuiltin(t, f, "validation", []string{"horizon_android_tv"})
	assert.Equal(t, harness.ExitFailure, code)

	report := f.harness.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 1, report.FailedSteps)
}
