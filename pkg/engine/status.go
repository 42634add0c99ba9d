package engine

import (
	"fmt"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

// TaskStatus represents the state of one operation invocation.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been created but not started.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusResolving indicates parameters and conditions are being resolved.
	TaskStatusResolving TaskStatus = "resolving"

	// TaskStatusRunning indicates workers have been dispatched.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusCommitting indicates the target is being published.
	TaskStatusCommitting TaskStatus = "committing"

	// TaskStatusSucceeded indicates the target was committed.
	TaskStatusSucceeded TaskStatus = "succeeded"

	// TaskStatusFailed indicates the batch failed and nothing was committed.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCancelled indicates the batch observed the cancellation signal.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusCancelled
}

// IsActive returns true while the task is resolving, running or committing.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusResolving || s == TaskStatusRunning || s == TaskStatusCommitting
}

// Validate checks if the status is valid.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusPending, TaskStatusResolving, TaskStatusRunning, TaskStatusCommitting,
		TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid task status: %s", s)
	}
}

// statusForError maps a batch outcome to its terminal status.
func statusForError(err error) TaskStatus {
	switch {
	case err == nil:
		return TaskStatusSucceeded
	case errdefs.IsCancellation(err):
		return TaskStatusCancelled
	default:
		return TaskStatusFailed
	}
}
