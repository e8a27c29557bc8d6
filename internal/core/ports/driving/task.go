package driving

import (
	"context"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

// TaskService exposes the Task Registry to callers outside core.
type TaskService interface {
	// Get fails with domain.ErrTaskNotFound if the id is unknown.
	Get(ctx context.Context, taskID string) (domain.Task, error)

	// Subscribe delivers the task's current state followed by every
	// subsequent event until a terminal state, then closes the channel. The
	// returned cancel function releases the subscription early.
	Subscribe(ctx context.Context, taskID string) (<-chan domain.ProgressEvent, func(), error)
}
