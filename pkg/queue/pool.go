package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/angelstreet/virtualpytest-sub008/pkg/tasks"
)

// DefaultWorkerCount is used when the configured count is zero or negative.
const DefaultWorkerCount = 4

// DefaultQueueDepth bounds how many submitted jobs may wait for a worker.
const DefaultQueueDepth = 64

// WorkerPool manages a pool of queue workers draining a shared job channel.
type WorkerPool struct {
	tasks    *tasks.Manager
	workers  []*Worker
	jobs     chan Job
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Active job cancel registry: task_id → cancel function.
	mu         sync.RWMutex
	activeJobs map[string]context.CancelFunc
	started    bool
}

// NewWorkerPool creates a worker pool that reports completions to the task
// manager.
func NewWorkerPool(workerCount int, tm *tasks.Manager) *WorkerPool {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	return &WorkerPool{
		tasks:      tm,
		workers:    make([]*Worker, 0, workerCount),
		jobs:       make(chan Job, DefaultQueueDepth),
		stopCh:     make(chan struct{}),
		activeJobs: make(map[string]context.CancelFunc),
	}
}

// Start spawns the worker goroutines. It is safe to call multiple times;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true
	count := cap(p.workers)
	p.mu.Unlock()

	slog.Info("Starting worker pool", "worker_count", count)

	for i := 0; i < count; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), p.tasks, p)
		p.workers = append(p.workers, worker)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			worker.run(ctx, p.jobs, p.stopCh)
		}()
	}
}

// Stop signals all workers to stop and waits for them to finish. Workers
// finish their current jobs before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	active := p.activeTaskIDs()
	if len(active) > 0 {
		slog.Info("Waiting for active jobs to complete",
			"count", len(active), "task_ids", active)
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// Submit enqueues a job. It fails when the pool is stopping or the queue is
// full; the caller should fail the task in that case.
func (p *WorkerPool) Submit(job Job) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("worker pool is stopping")
	default:
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return fmt.Errorf("job queue is full (%d pending)", cap(p.jobs))
	}
}

// Cancel cancels the running job for the given task id. Returns false when
// no such job is active (not yet picked up, or already finished).
func (p *WorkerPool) Cancel(taskID string) bool {
	p.mu.RLock()
	cancel, ok := p.activeJobs[taskID]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (p *WorkerPool) registerJob(taskID string, cancel context.CancelFunc) {
	p.mu.Lock()
	p.activeJobs[taskID] = cancel
	p.mu.Unlock()
}

func (p *WorkerPool) unregisterJob(taskID string) {
	p.mu.Lock()
	delete(p.activeJobs, taskID)
	p.mu.Unlock()
}

func (p *WorkerPool) activeTaskIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeJobs))
	for id := range p.activeJobs {
		ids = append(ids, id)
	}
	return ids
}
