package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/virtualpytest-sub008/pkg/harness"
	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/proxy"
	"github.com/angelstreet/virtualpytest-sub008/pkg/queue"
	"github.com/angelstreet/virtualpytest-sub008/pkg/store"
	"github.com/angelstreet/virtualpytest-sub008/pkg/tasks"
)

// fakeHost is a minimal device host: it accepts action batches and script
// starts, recording what it saw.
type fakeHost struct {
	mu           sync.Mutex
	batches      []proxy.BatchActionsRequest
	scriptStarts []proxy.ScriptRequest
	failBatches  bool
	server       *httptest.Server
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	f := &fakeHost{}
	mux := http.NewServeMux()
	mux.HandleFunc("/host/action/executeBatch", func(w http.ResponseWriter, r *http.Request) {
		var req proxy.BatchActionsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.batches = append(f.batches, req)
		fail := f.failBatches
		f.mu.Unlock()

		result := models.ActionBatchResult{
			Success:     !fail,
			TotalCount:  len(req.Actions),
			PassedCount: len(req.Actions),
		}
		if fail {
			result.PassedCount = 0
		}
		_ = json.NewEncoder(w).Encode(result)
	})
	mux.HandleFunc("/host/script/execute", func(w http.ResponseWriter, r *http.Request) {
		var req proxy.ScriptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.scriptStarts = append(f.scriptStarts, req)
		f.mu.Unlock()

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(proxy.ScriptAccepted{TaskID: req.TaskID, Status: "started"})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

type serverFixture struct {
	api    *ServerAPI
	router *gin.Engine
	tasks  *tasks.Manager
	host   *fakeHost
	store  *store.MemoryStore
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	st := store.NewMemoryStore()
	seedTree(t, st)

	tm := tasks.NewManager()
	pool := queue.NewWorkerPool(2, tm)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	host := newFakeHost(t)
	scripts := harness.NewScriptRegistry()
	scripts.Register(harness.ScriptInfo{
		Name:        "goto_live",
		Description: "Navigate to the live screen",
		ArgDecls:    []string{"--dns:str:google.com"},
	}, nil)

	api := NewServerAPI(st, tm, pool, navigation.NewCache(st), scripts,
		map[string]*proxy.Client{"host1": proxy.NewClient(host.server.URL)},
		testTeam, "http://server.local")
	return &serverFixture{api: api, router: api.Router(), tasks: tm, host: host, store: st}
}

func waitForTask(t *testing.T, tm *tasks.Manager, taskID string) models.TaskRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok := tm.GetTask(taskID)
		require.True(t, ok)
		if rec.Status.Terminal() {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never finished", taskID)
	return models.TaskRecord{}
}

func TestServer_RunValidation_Lifecycle(t *testing.T) {
	f := newServerFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/server/validation/run/tree-1", ValidationRunRequest{
		Host:     "host1",
		DeviceID: "dev1",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var accepted struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.TaskID)
	assert.Equal(t, "started", accepted.Status)

	rec := waitForTask(t, f.tasks, accepted.TaskID)
	require.Equal(t, models.TaskStatusCompleted, rec.Status, rec.Error)

	result, ok := rec.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, 1, result["total"])

	// The status endpoint serves the same record.
	w = doJSON(t, f.router, http.MethodGet, "/server/validation/status/"+accepted.TaskID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"completed"`)

	f.host.mu.Lock()
	defer f.host.mu.Unlock()
	require.Len(t, f.host.batches, 1)
	assert.Equal(t, "e1", f.host.batches[0].EdgeID)
	assert.Equal(t, "dev1", f.host.batches[0].DeviceID)
}

func TestServer_RunValidation_FailedTransitionsReported(t *testing.T) {
	f := newServerFixture(t)
	f.host.failBatches = true

	w := doJSON(t, f.router, http.MethodPost, "/server/validation/run/tree-1", ValidationRunRequest{
		Host: "host1", DeviceID: "dev1",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

	rec := waitForTask(t, f.tasks, accepted.TaskID)
	require.Equal(t, models.TaskStatusCompleted, rec.Status)
	result := rec.Result.(map[string]any)
	assert.Equal(t, false, result["success"])
	assert.Equal(t, 1, result["failed"])
}

func TestServer_RunValidation_UnknownHost(t *testing.T) {
	f := newServerFixture(t)
	w := doJSON(t, f.router, http.MethodPost, "/server/validation/run/tree-1", ValidationRunRequest{
		Host: "ghost",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_RunValidation_EdgeFilter(t *testing.T) {
	f := newServerFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/server/validation/run/tree-1", ValidationRunRequest{
		Host:     "host1",
		DeviceID: "dev1",
		EdgesToValidate: []EdgeSelector{
			{FromNode: "nope", ToNode: "nowhere"},
		},
	})
	// Nothing matches the selector: the request is rejected up front.
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_PreviewPath(t *testing.T) {
	f := newServerFixture(t)

	w := doJSON(t, f.router, http.MethodGet, "/server/pathfinding/preview/tree-1?target=live&current_node_id=home", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Transitions     []models.Transition `json:"transitions"`
		TransitionCount int                 `json:"transition_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.TransitionCount)
	assert.Equal(t, "e1", resp.Transitions[0].EdgeID)

	// Already at target: empty transitions, not an error.
	w = doJSON(t, f.router, http.MethodGet, "/server/pathfinding/preview/tree-1?target=home&current_node_id=home", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"already_at_target":true`)
}

func TestServer_PreviewPath_MissingTarget(t *testing.T) {
	f := newServerFixture(t)
	w := doJSON(t, f.router, http.MethodGet, "/server/pathfinding/preview/tree-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_ExecuteScript_CallbackCompletesTask(t *testing.T) {
	f := newServerFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/server/script/execute", ScriptExecuteRequest{
		ScriptName: "goto_live",
		Host:       "host1",
		DeviceID:   "dev1",
		Parameters: []string{"horizon_android_tv"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var accepted struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

	// The host was told where to call back.
	f.host.mu.Lock()
	require.Len(t, f.host.scriptStarts, 1)
	start := f.host.scriptStarts[0]
	f.host.mu.Unlock()
	assert.Equal(t, accepted.TaskID, start.TaskID)
	assert.Equal(t, "http://server.local", start.CallbackURL)

	// Simulate the host's completion callback.
	w = doJSON(t, f.router, http.MethodPost, "/server/script/taskComplete", proxy.TaskCompleteRequest{
		TaskID: accepted.TaskID,
		Result: map[string]any{"exit_code": 0},
	})
	require.Equal(t, http.StatusOK, w.Code)

	rec, ok := f.tasks.GetTask(accepted.TaskID)
	require.True(t, ok)
	assert.Equal(t, models.TaskStatusCompleted, rec.Status)
}

func TestServer_ExecuteScript_UnknownScript(t *testing.T) {
	f := newServerFixture(t)
	w := doJSON(t, f.router, http.MethodPost, "/server/script/execute", ScriptExecuteRequest{
		ScriptName: "missing", Host: "host1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_TaskComplete_UnknownTask(t *testing.T) {
	f := newServerFixture(t)
	w := doJSON(t, f.router, http.MethodPost, "/server/script/taskComplete", proxy.TaskCompleteRequest{
		TaskID: "nope",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ListAndAnalyzeScripts(t *testing.T) {
	f := newServerFixture(t)

	w := doJSON(t, f.router, http.MethodGet, "/server/script/list", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goto_live")

	w = doJSON(t, f.router, http.MethodGet, "/server/script/analyze?script_name=goto_live", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var analysis harness.ScriptAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))
	require.Len(t, analysis.Args, 3) // dns + host + device
	assert.Equal(t, "dns", analysis.Args[0].Name)

	w = doJSON(t, f.router, http.MethodGet, "/server/script/analyze", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_TaskStatus_NotFound(t *testing.T) {
	f := newServerFixture(t)
	w := doJSON(t, f.router, http.MethodGet, "/server/validation/status/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
