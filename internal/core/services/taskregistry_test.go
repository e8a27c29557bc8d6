package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

func newTestRegistry() *TaskRegistry {
	n := 0
	return NewTaskRegistry(func() string {
		n++
		return "task-" + string(rune('0'+n))
	})
}

func TestTaskRegistry_CreateGet(t *testing.T) {
	r := newTestRegistry()
	id := r.Create()

	task, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, task.State)
	assert.Equal(t, 0, task.Progress)
}

func TestTaskRegistry_GetUnknown(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestTaskRegistry_UpdateTransitionsToRunningAndClampsProgress(t *testing.T) {
	r := newTestRegistry()
	id := r.Create()

	r.Update(id, 30, domain.StageChunking, "chunking")
	task, _ := r.Get(id)
	assert.Equal(t, domain.TaskRunning, task.State)
	assert.Equal(t, 30, task.Progress)

	r.Update(id, 10, domain.StageChunking, "should not regress")
	task, _ = r.Get(id)
	assert.Equal(t, 30, task.Progress)
}

func TestTaskRegistry_CompleteSetsStatisticsAndTerminalState(t *testing.T) {
	r := newTestRegistry()
	id := r.Create()
	stats := domain.Statistics{MessagesParsed: 5}

	r.Complete(id, stats)

	task, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.State)
	assert.Equal(t, 100, task.Progress)
	assert.Equal(t, 5, task.Statistics.MessagesParsed)
}

func TestTaskRegistry_FailSetsError(t *testing.T) {
	r := newTestRegistry()
	id := r.Create()

	r.Fail(id, domain.ErrCancelled)

	task, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, task.State)
	assert.Equal(t, domain.ErrCancelled.Error(), task.Error)
}

func TestTaskRegistry_SubscribeReceivesSnapshotThenEvents(t *testing.T) {
	r := newTestRegistry()
	id := r.Create()

	ch, cancel, err := r.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	snapshot := <-ch
	assert.Equal(t, 0, snapshot.Progress)

	r.Update(id, 50, domain.StageEncodingMsgs, "halfway")

	select {
	case ev := <-ch:
		assert.Equal(t, 50, ev.Progress)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress event")
	}
}

func TestTaskRegistry_SubscribeAfterTerminalGetsClosedChannel(t *testing.T) {
	r := newTestRegistry()
	id := r.Create()
	r.Complete(id, domain.Statistics{})

	ch, _, err := r.Subscribe(id)
	require.NoError(t, err)

	ev, ok := <-ch
	require.True(t, ok)
	assert.True(t, ev.Terminal)

	_, ok = <-ch
	assert.False(t, ok)
}

func TestTaskRegistry_SubscribeUnknownTask(t *testing.T) {
	r := newTestRegistry()
	_, _, err := r.Subscribe("nope")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}
