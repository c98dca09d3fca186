package blocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// Async execution statuses.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// ExecutionRecord is the pollable state of one async block execution.
type ExecutionRecord struct {
	ExecutionID string              `json:"execution_id"`
	Command     string              `json:"command"`
	Status      string              `json:"status"`
	StartTime   time.Time           `json:"start_time"`
	Progress    map[string]any      `json:"progress,omitempty"`
	Result      *models.BlockResult `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// AsyncExecutor runs long blocks in the background and keeps pollable
// records. Records are kept until the cleanup service removes them.
type AsyncExecutor struct {
	registry *Registry

	mu         sync.Mutex
	executions map[string]*ExecutionRecord
}

// NewAsyncExecutor wraps a registry with async execution tracking.
func NewAsyncExecutor(registry *Registry) *AsyncExecutor {
	return &AsyncExecutor{
		registry:   registry,
		executions: make(map[string]*ExecutionRecord),
	}
}

// Start launches the block in a goroutine and returns the execution id
// immediately. The context should outlive the request that started it.
func (a *AsyncExecutor) Start(ctx context.Context, rt Runtime, command string, params map[string]any) string {
	id := uuid.NewString()

	a.mu.Lock()
	a.executions[id] = &ExecutionRecord{
		ExecutionID: id,
		Command:     command,
		Status:      ExecutionRunning,
		StartTime:   time.Now(),
	}
	a.mu.Unlock()

	go func() {
		result := a.registry.Execute(ctx, rt, command, params)

		a.mu.Lock()
		defer a.mu.Unlock()
		rec := a.executions[id]
		rec.Result = &result
		if result.Success {
			rec.Status = ExecutionCompleted
		} else {
			rec.Status = ExecutionFailed
			rec.Error = result.Error
		}
	}()

	return id
}

// Get returns a copy of the execution record, or false if unknown.
func (a *AsyncExecutor) Get(executionID string) (ExecutionRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.executions[executionID]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}

// CleanupOld removes terminal records started more than maxAge ago.
func (a *AsyncExecutor) CleanupOld(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for id, rec := range a.executions {
		if rec.Status != ExecutionRunning && rec.StartTime.Before(cutoff) {
			delete(a.executions, id)
			removed++
		}
	}
	return removed
}
