package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/tasks"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// jobRegistry is the subset of WorkerPool used by workers for cancel
// registration.
type jobRegistry interface {
	registerJob(taskID string, cancel context.CancelFunc)
	unregisterJob(taskID string)
}

// Worker drains the pool's job channel one job at a time.
type Worker struct {
	id    string
	tasks *tasks.Manager
	pool  jobRegistry

	mu            sync.RWMutex
	status        WorkerStatus
	currentTaskID string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a queue worker.
func NewWorker(id string, tm *tasks.Manager, pool jobRegistry) *Worker {
	return &Worker{
		id:           id,
		tasks:        tm,
		pool:         pool,
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Status returns the worker's current state and the task it is working on.
func (w *Worker) Status() (WorkerStatus, string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status, w.currentTaskID
}

// run is the worker loop. It exits when stopCh closes or ctx is cancelled;
// the current job always runs to completion first.
func (w *Worker) run(ctx context.Context, jobs <-chan Job, stopCh <-chan struct{}) {
	logger := slog.Default().With("worker_id", w.id)
	logger.Debug("Worker started")

	for {
		select {
		case <-stopCh:
			logger.Debug("Worker stopping")
			return
		case <-ctx.Done():
			return
		case job := <-jobs:
			w.process(ctx, job, logger)
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job, logger *slog.Logger) {
	w.setWorking(job.TaskID)
	defer w.setIdle()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.pool.registerJob(job.TaskID, cancel)
	defer w.pool.unregisterJob(job.TaskID)

	w.tasks.MarkRunning(job.TaskID)
	logger.Info("Job started", "task_id", job.TaskID, "command", job.Command)

	start := time.Now()
	result, err := w.runGuarded(jobCtx, job)
	elapsed := time.Since(start)

	if err != nil {
		logger.Warn("Job failed",
			"task_id", job.TaskID, "command", job.Command,
			"duration", elapsed, "error", err)
		w.tasks.CompleteTask(job.TaskID, result, err.Error())
		return
	}
	logger.Info("Job completed",
		"task_id", job.TaskID, "command", job.Command, "duration", elapsed)
	w.tasks.CompleteTask(job.TaskID, result, "")
}

// runGuarded converts a panicking job into a failed task instead of taking
// the worker down.
func (w *Worker) runGuarded(ctx context.Context, job Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	progress := func(p map[string]any) {
		w.tasks.UpdateTaskProgress(job.TaskID, p)
	}
	return job.Run(ctx, progress)
}

func (w *Worker) setWorking(taskID string) {
	w.mu.Lock()
	w.status = WorkerStatusWorking
	w.currentTaskID = taskID
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

func (w *Worker) setIdle() {
	w.mu.Lock()
	w.status = WorkerStatusIdle
	w.currentTaskID = ""
	w.jobsProcessed++
	w.lastActivity = time.Now()
	w.mu.Unlock()
}
