package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/virtualpytest-sub008/pkg/blocks"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
)

const testTeam = "team-1"

// seedTree stores a small tree: home (entry) -> live -> settings, plus a
// disconnected island node. The live node carries one image verification.
func seedTree(t *testing.T, st *store.MemoryStore) {
	t.Helper()

	st.PutAction(testTeam, models.Action{
		ID: "act-home-live", ActionType: "remote", Command: "press_key_LIVE",
		Params: map[string]any{"key": "LIVE"},
	})
	st.PutAction(testTeam, models.Action{
		ID: "act-live-settings", ActionType: "remote", Command: "press_key_SETTINGS",
		Params: map[string]any{"key": "SETTINGS"},
	})
	st.PutAction(testTeam, models.Action{
		ID: "act-retry", ActionType: "remote", Command: "press_key_RETRY",
		Params: map[string]any{"key": "RETRY"},
	})
	st.PutVerification(testTeam, models.Verification{
		ID: "ver-live", VerificationType: "image", Command: "waitForImageToAppear",
		Params: map[string]any{"image_path": "ref/live.png"},
	})

	tree := &models.NavigationTree{
		TreeID:            "tree-1",
		TeamID:            testTeam,
		Name:              "Horizon",
		UserinterfaceName: "horizon_android_tv",
		Nodes: []models.Node{
			{NodeID: "home", Label: "Home", NodeType: models.NodeTypeEntry},
			{NodeID: "live", Label: "Live", NodeType: models.NodeTypeScreen, VerificationIDs: []string{"ver-live"}},
			{NodeID: "settings", Label: "Settings", NodeType: models.NodeTypeScreen},
			{NodeID: "island", Label: "Island", NodeType: models.NodeTypeScreen},
		},
		Edges: []models.Edge{
			{EdgeID: "e1", FromNode: "home", ToNode: "live",
				ActionIDs: []string{"act-home-live"}, RetryActionIDs: []string{"act-retry"}, FinalWaitTime: 1},
			{EdgeID: "e2", FromNode: "live", ToNode: "settings",
				ActionIDs: []string{"act-live-settings"}, FinalWaitTime: 1},
		},
	}
	require.NoError(t, st.SaveTree(context.Background(), tree))
}

func newTestNavExecutor(t *testing.T, ctrl *fakeController, st *store.MemoryStore) *NavigationExecutor {
	t.Helper()
	cache := navigation.NewCache(st)
	nav := NewNavigationExecutor(cache,
		NewActionExecutor(ctrl, st),
		NewVerificationExecutor(ctrl, st),
		nil)
	nav.sleep = func(context.Context, time.Duration) {}
	return nav
}

func TestExecuteNavigation_TrivialPath(t *testing.T) {
	// S1: home -> live with a single action; the live node's verification
	// also runs on arrival.
	ctrl := newFakeController()
	st := store.NewMemoryStore()
	seedTree(t, st)
	nav := newTestNavExecutor(t, ctrl, st)

	result := nav.ExecuteNavigation(context.Background(), NavigationRequest{
		TreeID:        "tree-1",
		TeamID:        testTeam,
		TargetNodeID:  "live",
		CurrentNodeID: "home",
		Scope:         Scope{HostName: "host1", DeviceModel: "android_tv"},
	})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 1, result.TransitionsExecuted)
	assert.Equal(t, 1, result.TotalTransitions)
	assert.Equal(t, 1, result.ActionsExecuted)
	assert.Equal(t, "live", result.FinalPositionNodeID)
	require.Len(t, result.NavigationPath, 1)
	assert.Equal(t, "Home -> Live (1 actions)", result.NavigationPath[0])

	require.Len(t, st.EdgeExecutions, 1)
	assert.Equal(t, "e1", st.EdgeExecutions[0].EdgeID)
	assert.Equal(t, "tree-1", st.EdgeExecutions[0].TreeID)
	require.Len(t, st.NodeExecutions, 1)
	assert.Equal(t, "live", st.NodeExecutions[0].NodeID)
}

func TestExecuteNavigation_TargetByLabelCaseInsensitive(t *testing.T) {
	ctrl := newFakeController()
	st := store.NewMemoryStore()
	seedTree(t, st)
	nav := newTestNavExecutor(t, ctrl, st)

	result := nav.ExecuteNavigation(context.Background(), NavigationRequest{
		TreeID:          "tree-1",
		TeamID:          testTeam,
		TargetNodeLabel: "SETTINGS",
		CurrentNodeID:   "home",
	})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 2, result.TransitionsExecuted)
	assert.Equal(t, "settings", result.FinalPositionNodeID)
}

func TestExecuteNavigation_UnreachableTarget(t *testing.T) {
	// S3: disconnected target yields a failure with no executions recorded.
	ctrl := newFakeController()
	st := store.NewMemoryStore()
	seedTree(t, st)
	nav := newTestNavExecutor(t, ctrl, st)

	result := nav.ExecuteNavigation(context.Background(), NavigationRequest{
		TreeID:        "tree-1",
		TeamID:        testTeam,
		TargetNodeID:  "island",
		CurrentNodeID: "home",
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no path found")
	assert.Equal(t, "home", result.FinalPositionNodeID)
	assert.Empty(t, st.EdgeExecutions)
	assert.Empty(t, st.NodeExecutions)
}

func TestExecuteNavigation_FailedTransitionReportsLastGoodPosition(t *testing.T) {
	ctrl := newFakeController()
	ctrl.alwaysFail["press_key_SETTINGS"] = true
	st := store.NewMemoryStore()
	seedTree(t, st)
	nav := newTestNavExecutor(t, ctrl, st)

	result := nav.ExecuteNavigation(context.Background(), NavigationRequest{
		TreeID:        "tree-1",
		TeamID:        testTeam,
		TargetNodeID:  "settings",
		CurrentNodeID: "home",
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.TransitionsExecuted)
	assert.Equal(t, 2, result.TotalTransitions)
	// First transition landed on live; the failed one did not move us.
	assert.Equal(t, "live", result.FinalPositionNodeID)
}

func TestExecuteNavigation_NoTransitionsWhenAlreadyAtTarget(t *testing.T) {
	ctrl := newFakeController()
	st := store.NewMemoryStore()
	seedTree(t, st)
	nav := newTestNavExecutor(t, ctrl, st)

	result := nav.ExecuteNavigation(context.Background(), NavigationRequest{
		TreeID:        "tree-1",
		TeamID:        testTeam,
		TargetNodeID:  "live",
		CurrentNodeID: "live",
	})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 0, result.TotalTransitions)
	assert.Empty(t, st.EdgeExecutions)
	// Arrival verification still runs on the target node.
	require.Len(t, st.NodeExecutions, 1)
}

func TestExecuteNavigation_ArrivalVerificationFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.alwaysFail["waitForImageToAppear"] = true
	st := store.NewMemoryStore()
	seedTree(t, st)
	nav := newTestNavExecutor(t, ctrl, st)

	result := nav.ExecuteNavigation(context.Background(), NavigationRequest{
		TreeID:        "tree-1",
		TeamID:        testTeam,
		TargetNodeID:  "live",
		CurrentNodeID: "home",
	})

	assert.False(t, result.Success)
	// Arrived visually but did not verify; position is still the target.
	assert.Equal(t, "live", result.FinalPositionNodeID)
	assert.Contains(t, result.Error, "target verification failed")
	require.Len(t, result.VerificationResults, 1)
	assert.Equal(t, models.ResultTypeFail, result.VerificationResults[0].ResultType)
}

func TestExecuteNavigation_PrecomputedPathSkipsPathfinder(t *testing.T) {
	ctrl := newFakeController()
	st := store.NewMemoryStore()
	seedTree(t, st)
	nav := newTestNavExecutor(t, ctrl, st)

	path := []models.Transition{{
		TransitionNumber: 1,
		EdgeID:           "e2",
		FromNodeID:       "live",
		ToNodeID:         "settings",
		Actions: []models.Action{{
			ID: "act-live-settings", Command: "press_key_SETTINGS",
			Params: map[string]any{"key": "SETTINGS", "wait_time": 500},
		}},
		Description: "Live -> Settings (1 actions)",
	}}

	result := nav.ExecuteNavigation(context.Background(), NavigationRequest{
		TreeID:         "tree-1",
		TeamID:         testTeam,
		TargetNodeID:   "settings",
		CurrentNodeID:  "live",
		NavigationPath: path,
	})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, []string{"press_key_SETTINGS"}, ctrl.calls)
}

func newTestOrchestrator(t *testing.T, ctrl *fakeController, st *store.MemoryStore) *Orchestrator {
	t.Helper()
	nav := newTestNavExecutor(t, ctrl, st)
	return NewOrchestrator(
		NewActionExecutor(ctrl, st),
		NewVerificationExecutor(ctrl, st),
		nav,
		blocks.NewRegistry(),
		ctrl)
}

func TestOrchestrator_ResultEnvelopesCarryLogs(t *testing.T) {
	ctrl := newFakeController()
	st := store.NewMemoryStore()
	seedTree(t, st)
	o := newTestOrchestrator(t, ctrl, st)

	result := o.ExecuteNavigation(context.Background(), NavigationRequest{
		TreeID:        "tree-1",
		TeamID:        testTeam,
		TargetNodeID:  "island",
		CurrentNodeID: "home",
	})

	assert.False(t, result.Success)
	// The pathfinder diagnostic dump lands in this execution's logs.
	assert.Contains(t, result.Logs, "No navigation path found")

	// Filter diagnostics land in the envelope too: a dropped verification
	// leaves its warning in that execution's captured logs.
	vres := o.ExecuteVerifications(context.Background(),
		[]models.Verification{{ID: "v-bad", VerificationType: "telepathy"}},
		models.PassConditionAll, testScope())
	assert.True(t, vres.Success)
	assert.Contains(t, vres.Logs, "Dropping invalid verification")
	assert.Contains(t, vres.Logs, "v-bad")
}

func TestOrchestrator_ConcurrentExecutionLogsAreDisjoint(t *testing.T) {
	st := store.NewMemoryStore()
	seedTree(t, st)

	var wg sync.WaitGroup
	logsOf := make([]string, 2)
	edges := []string{"edge-alpha", "edge-beta"}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scope := testScope()
			scope.EdgeID = edges[i]
			// A failing main action triggers the retry log line that
			// carries the edge id.
			ctrl := newFakeController()
			ctrl.alwaysFail["press_key_X"] = true
			o := newTestOrchestrator(t, ctrl, st)
			result := o.ExecuteActions(context.Background(),
				[]models.Action{{ID: "a", Command: "press_key_X"}},
				[]models.Action{{ID: "r", Command: "press_key_Y"}},
				nil, scope)
			logsOf[i] = result.Logs
		}(i)
	}
	wg.Wait()

	assert.Contains(t, logsOf[0], "edge-alpha")
	assert.NotContains(t, logsOf[0], "edge-beta")
	assert.Contains(t, logsOf[1], "edge-beta")
	assert.NotContains(t, logsOf[1], "edge-alpha")
}

func TestOrchestrator_ExecuteBlock(t *testing.T) {
	ctrl := newFakeController()
	st := store.NewMemoryStore()
	o := newTestOrchestrator(t, ctrl, st)

	execCtx := models.NewExecutionContext("host1", testTeam)
	result := o.ExecuteBlock(context.Background(), "evaluate_condition",
		map[string]any{"left": "a", "right": "a"}, execCtx)

	assert.True(t, result.Success)
	assert.Equal(t, true, result.Output["condition_met"])
}
