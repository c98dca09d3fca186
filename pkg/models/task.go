package models

import "time"

// TaskStatus represents the lifecycle state of an async task.
type TaskStatus string

// Task status constants.
const (
	TaskStatusStarted   TaskStatus = "started"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskRecord is a task-manager entry backing long-running HTTP requests.
// Records handed out by the manager are copies, not references.
type TaskRecord struct {
	ID          string         `json:"task_id"`
	Command     string         `json:"command"`
	Params      map[string]any `json:"params,omitempty"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Progress    map[string]any `json:"progress,omitempty"`
}
