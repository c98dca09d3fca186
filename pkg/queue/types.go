// Package queue provides the background worker pool that runs long
// operations on behalf of the HTTP surfaces. A route handler creates a task
// record, submits a job here, and returns the task id; workers execute the
// job and complete the task when it finishes.
package queue

import "context"

// JobFunc is the body of one background job. The progress callback replaces
// the task's progress structure atomically; jobs should poll ctx for
// cooperative cancellation at their own suspension points.
type JobFunc func(ctx context.Context, progress func(map[string]any)) (any, error)

// Job is one unit of background work bound to a task record.
type Job struct {
	TaskID  string
	Command string
	Run     JobFunc
}
