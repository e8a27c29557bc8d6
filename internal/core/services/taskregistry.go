package services

import (
	"sync"
	"time"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

// subscriberBufferSize bounds each subscriber's event channel, per §4.10's
// "bounded channel per task" requirement.
const subscriberBufferSize = 32

// taskEntry is the registry's internal per-task state: the task record plus
// its live subscribers.
type taskEntry struct {
	mu          sync.Mutex
	task        domain.Task
	subscribers map[int]chan domain.ProgressEvent
	nextSubID   int
}

// TaskRegistry is an in-memory, thread-safe map from task id to Task state,
// per §4.10. Observers subscribe through a bounded channel per task and
// receive the current state plus all subsequent events until a terminal
// state.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*taskEntry
	newID func() string
}

// NewTaskRegistry builds an empty registry. newID supplies opaque task ids
// and must not be nil; cmd/serchaforensic passes uuid.NewString.
func NewTaskRegistry(newID func() string) *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[string]*taskEntry),
		newID: newID,
	}
}

// Create registers a new pending task and returns its id.
func (r *TaskRegistry) Create() string {
	id := r.newID()
	now := time.Now()

	entry := &taskEntry{
		task: domain.Task{
			TaskID:    id,
			State:     domain.TaskPending,
			Progress:  0,
			StartedAt: now,
			UpdatedAt: now,
		},
		subscribers: make(map[int]chan domain.ProgressEvent),
	}

	r.mu.Lock()
	r.tasks[id] = entry
	r.mu.Unlock()

	return id
}

// Update advances a task's progress, stage, and message, and transitions it
// to running on its first update. Progress is clamped to be monotonically
// non-decreasing, per §5's ordering guarantee.
func (r *TaskRegistry) Update(taskID string, progress int, stage domain.Stage, message string) {
	entry := r.entry(taskID)
	if entry == nil {
		return
	}

	entry.mu.Lock()
	if entry.task.State == domain.TaskPending {
		entry.task.State = domain.TaskRunning
	}
	if progress > entry.task.Progress {
		entry.task.Progress = progress
	}
	entry.task.Stage = stage
	entry.task.Message = message
	entry.task.UpdatedAt = time.Now()

	event := domain.ProgressEvent{
		TaskID:     taskID,
		Progress:   entry.task.Progress,
		Stage:      stage,
		Message:    message,
		ElapsedSec: time.Since(entry.task.StartedAt).Seconds(),
	}
	r.broadcast(entry, event)
	entry.mu.Unlock()
}

// Complete transitions a task to completed with final statistics.
func (r *TaskRegistry) Complete(taskID string, stats domain.Statistics) {
	entry := r.entry(taskID)
	if entry == nil {
		return
	}

	entry.mu.Lock()
	entry.task.State = domain.TaskCompleted
	entry.task.Progress = 100
	entry.task.Statistics = stats
	entry.task.UpdatedAt = time.Now()

	event := domain.ProgressEvent{
		TaskID:     taskID,
		Progress:   100,
		Stage:      entry.task.Stage,
		Terminal:   true,
		Statistics: &stats,
		ElapsedSec: time.Since(entry.task.StartedAt).Seconds(),
	}
	r.broadcast(entry, event)
	r.closeSubscribers(entry)
	entry.mu.Unlock()
}

// Fail transitions a task to failed with the given error.
func (r *TaskRegistry) Fail(taskID string, err error) {
	entry := r.entry(taskID)
	if entry == nil {
		return
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}

	entry.mu.Lock()
	entry.task.State = domain.TaskFailed
	entry.task.Error = msg
	entry.task.UpdatedAt = time.Now()

	event := domain.ProgressEvent{
		TaskID:     taskID,
		Progress:   entry.task.Progress,
		Stage:      entry.task.Stage,
		Terminal:   true,
		Err:        msg,
		ElapsedSec: time.Since(entry.task.StartedAt).Seconds(),
	}
	r.broadcast(entry, event)
	r.closeSubscribers(entry)
	entry.mu.Unlock()
}

// Get returns a task's current state, failing with domain.ErrTaskNotFound.
func (r *TaskRegistry) Get(taskID string) (domain.Task, error) {
	entry := r.entry(taskID)
	if entry == nil {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.task, nil
}

// Subscribe returns a channel delivering the task's current state as a
// synthetic first event, then every subsequent event until a terminal
// state, at which point the channel is closed. The returned cancel
// function unsubscribes early without waiting for a terminal event.
func (r *TaskRegistry) Subscribe(taskID string) (<-chan domain.ProgressEvent, func(), error) {
	entry := r.entry(taskID)
	if entry == nil {
		return nil, nil, domain.ErrTaskNotFound
	}

	entry.mu.Lock()
	ch := make(chan domain.ProgressEvent, subscriberBufferSize)
	id := entry.nextSubID
	entry.nextSubID++
	entry.subscribers[id] = ch

	snapshot := domain.ProgressEvent{
		TaskID:     taskID,
		Progress:   entry.task.Progress,
		Stage:      entry.task.Stage,
		Message:    entry.task.Message,
		ElapsedSec: time.Since(entry.task.StartedAt).Seconds(),
	}
	terminal := entry.task.State == domain.TaskCompleted || entry.task.State == domain.TaskFailed
	if terminal {
		snapshot.Terminal = true
		if entry.task.State == domain.TaskFailed {
			snapshot.Err = entry.task.Error
		} else {
			stats := entry.task.Statistics
			snapshot.Statistics = &stats
		}
	}
	select {
	case ch <- snapshot:
	default:
	}
	if terminal {
		close(ch)
		delete(entry.subscribers, id)
	}
	entry.mu.Unlock()

	cancel := func() {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if c, ok := entry.subscribers[id]; ok {
			close(c)
			delete(entry.subscribers, id)
		}
	}

	return ch, cancel, nil
}

func (r *TaskRegistry) entry(taskID string) *taskEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[taskID]
}

// broadcast delivers event to every live subscriber without blocking;
// a subscriber too slow to keep up misses intermediate events rather than
// stalling the pipeline, since its buffer is bounded.
func (r *TaskRegistry) broadcast(entry *taskEntry, event domain.ProgressEvent) {
	for _, ch := range entry.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (r *TaskRegistry) closeSubscribers(entry *taskEntry) {
	for id, ch := range entry.subscribers {
		close(ch)
		delete(entry.subscribers, id)
	}
}
