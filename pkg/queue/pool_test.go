package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
	"github.com/angelstreet/virtualpytest-sub008/pkg/tasks"
)

func waitForTerminal(t *testing.T, tm *tasks.Manager, taskID string) models.TaskRecord {
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
	t.Fatalf("task %s never reached a terminal status", taskID)
	return models.TaskRecord{}
}

func TestWorkerPool_CompletesJob(t *testing.T) {
	tm := tasks.NewManager()
	pool := NewWorkerPool(2, tm)
	pool.Start(context.Background())
	defer pool.Stop()

	taskID := tm.CreateTask("validation", nil)
	err := pool.Submit(Job{
		TaskID:  taskID,
		Command: "validation",
		Run: func(ctx context.Context, progress func(map[string]any)) (any, error) {
			progress(map[string]any{"currentStep": 1, "totalSteps": 1})
			return map[string]any{"passed": true}, nil
		},
	})
	require.NoError(t, err)

	rec := waitForTerminal(t, tm, taskID)
	assert.Equal(t, models.TaskStatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.Progress["currentStep"])
	result, ok := rec.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["passed"])
}

func TestWorkerPool_JobErrorFailsTask(t *testing.T) {
	tm := tasks.NewManager()
	pool := NewWorkerPool(1, tm)
	pool.Start(context.Background())
	defer pool.Stop()

	taskID := tm.CreateTask("script_execute", nil)
	err := pool.Submit(Job{
		TaskID: taskID,
		Run: func(ctx context.Context, progress func(map[string]any)) (any, error) {
			return nil, errors.New("device unreachable")
		},
	})
	require.NoError(t, err)

	rec := waitForTerminal(t, tm, taskID)
	assert.Equal(t, models.TaskStatusFailed, rec.Status)
	assert.Equal(t, "device unreachable", rec.Error)
}

func TestWorkerPool_PanicFailsTaskWithoutKillingWorker(t *testing.T) {
	tm := tasks.NewManager()
	pool := NewWorkerPool(1, tm)
	pool.Start(context.Background())
	defer pool.Stop()

	panicID := tm.CreateTask("bad", nil)
	require.NoError(t, pool.Submit(Job{
		TaskID: panicID,
		Run: func(ctx context.Context, progress func(map[string]any)) (any, error) {
			panic("boom")
		},
	}))
	rec := waitForTerminal(t, tm, panicID)
	assert.Equal(t, models.TaskStatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "panicked")

	// The single worker must survive and pick up the next job.
	okID := tm.CreateTask("good", nil)
	require.NoError(t, pool.Submit(Job{
		TaskID: okID,
		Run: func(ctx context.Context, progress func(map[string]any)) (any, error) {
			return "ok", nil
		},
	}))
	rec = waitForTerminal(t, tm, okID)
	assert.Equal(t, models.TaskStatusCompleted, rec.Status)
}

func TestWorkerPool_CancelStopsRunningJob(t *testing.T) {
	tm := tasks.NewManager()
	pool := NewWorkerPool(1, tm)
	pool.Start(context.Background())
	defer pool.Stop()

	started := make(chan struct{})
	taskID := tm.CreateTask("long", nil)
	require.NoError(t, pool.Submit(Job{
		TaskID: taskID,
		Run: func(ctx context.Context, progress func(map[string]any)) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	<-started
	require.True(t, pool.Cancel(taskID))

	rec := waitForTerminal(t, tm, taskID)
	assert.Equal(t, models.TaskStatusFailed, rec.Status)
	assert.False(t, pool.Cancel(taskID), "finished jobs are no longer cancellable")
}

func TestWorkerPool_StopWaitsForCurrentJobs(t *testing.T) {
	tm := tasks.NewManager()
	pool := NewWorkerPool(2, tm)
	pool.Start(context.Background())

	var mu sync.Mutex
	finished := 0
	release := make(chan struct{})

	ids := make([]string, 2)
	for i := range ids {
		ids[i] = tm.CreateTask("slow", nil)
		require.NoError(t, pool.Submit(Job{
			TaskID: ids[i],
			Run: func(ctx context.Context, progress func(map[string]any)) (any, error) {
				<-release
				mu.Lock()
				finished++
				mu.Unlock()
				return nil, nil
			},
		}))
	}

	done := make(chan struct{})
	go func() {
		// Let workers pick the jobs up, then release them and stop.
		time.Sleep(20 * time.Millisecond)
		close(release)
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, finished, "Stop must wait for in-flight jobs")
}

func TestWorkerPool_SubmitAfterStopFails(t *testing.T) {
	tm := tasks.NewManager()
	pool := NewWorkerPool(1, tm)
	pool.Start(context.Background())
	pool.Stop()

	err := pool.Submit(Job{TaskID: "x"})
	assert.Error(t, err)
}
