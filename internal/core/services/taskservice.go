package services

import (
	"context"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

// TaskServiceAdapter exposes a TaskRegistry through the context-aware
// driving.TaskService port. The registry's own methods stay context-free
// since nothing in its synchronous, in-memory bookkeeping blocks.
type TaskServiceAdapter struct {
	registry *TaskRegistry
}

// NewTaskServiceAdapter wraps registry for driving.TaskService callers.
func NewTaskServiceAdapter(registry *TaskRegistry) *TaskServiceAdapter {
	return &TaskServiceAdapter{registry: registry}
}

// Get delegates to the wrapped registry.
func (a *TaskServiceAdapter) Get(_ context.Context, taskID string) (domain.Task, error) {
	return a.registry.Get(taskID)
}

// Subscribe delegates to the wrapped registry.
func (a *TaskServiceAdapter) Subscribe(_ context.Context, taskID string) (<-chan domain.ProgressEvent, func(), error) {
	return a.registry.Subscribe(taskID)
}
