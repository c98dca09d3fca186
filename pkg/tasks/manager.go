// Package tasks tracks asynchronous work started over the HTTP surfaces.
// Records live in process memory; the cleanup service removes old ones.
package tasks

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// Manager is a thread-safe task_id -> record map. All operations take the
// single mutex; callers receive copies, never references into the map.
type Manager struct {
	mu    sync.Mutex
	tasks map[string]*models.TaskRecord

	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates an empty task manager.
func NewManager() *Manager {
	return &Manager{
		tasks:  make(map[string]*models.TaskRecord),
		logger: slog.Default().With("component", "tasks"),
		now:    time.Now,
	}
}

// CreateTask registers a new task in status started and returns its id.
func (m *Manager) CreateTask(command string, params map[string]any) string {
	id := uuid.NewString()

	m.mu.Lock()
	m.tasks[id] = &models.TaskRecord{
		ID:        id,
		Command:   command,
		Params:    params,
		Status:    models.TaskStatusStarted,
		CreatedAt: m.now(),
	}
	m.mu.Unlock()

	m.logger.Info("Task created", "task_id", id, "command", command)
	return id
}

// UpdateTaskProgress replaces the task's progress structure atomically.
// The status is left alone: a task may report progress before a worker
// picks it up. Unknown ids are ignored.
func (m *Manager) UpdateTaskProgress(taskID string, progress map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[taskID]
	if !ok || rec.Status.Terminal() {
		return
	}
	rec.Progress = progress
}

// MarkRunning moves a started task to running. Called by the worker that
// picked the job up; no-op once terminal.
func (m *Manager) MarkRunning(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[taskID]
	if !ok || rec.Status.Terminal() {
		return
	}
	rec.Status = models.TaskStatusRunning
}

// CompleteTask transitions the task to completed (no error) or failed.
// Idempotent: once terminal, later calls are no-ops.
func (m *Manager) CompleteTask(taskID string, result any, taskErr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[taskID]
	if !ok || rec.Status.Terminal() {
		return
	}

	now := m.now()
	rec.CompletedAt = &now
	rec.Result = result
	rec.Error = taskErr
	if taskErr != "" {
		rec.Status = models.TaskStatusFailed
	} else {
		rec.Status = models.TaskStatusCompleted
	}
}

// GetTask returns a copy of the record, or false if unknown.
func (m *Manager) GetTask(taskID string) (models.TaskRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[taskID]
	if !ok {
		return models.TaskRecord{}, false
	}
	return *rec, true
}

// CleanupOldTasks removes tasks created more than maxAge ago and returns how
// many were removed.
func (m *Manager) CleanupOldTasks(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.tasks {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("Cleaned up old tasks", "removed", removed)
	}
	return removed
}
