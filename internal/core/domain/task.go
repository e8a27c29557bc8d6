package domain

import "time"

// TaskState is the lifecycle state of an asynchronous indexing job.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Stage identifies a pipeline stage for progress reporting.
type Stage string

const (
	StageParsing        Stage = "parsing"
	StageDenoising      Stage = "denoising"
	StageChunking       Stage = "chunking"
	StageEncodingMsgs   Stage = "encoding_messages"
	StageEncodingChunks Stage = "encoding_chunks"
	StageStorage        Stage = "storage"
)

// Statistics captures per-stage durations and counts, reported once a task
// reaches a terminal state.
type Statistics struct {
	StageDurations  map[Stage]time.Duration
	MessagesParsed  int
	MessagesSkipped int
	ChunksBuilt     int
	ImagesParsed    int
	VectorsStored   int
}

// Task is the state of a long-running indexing job, addressable by its
// opaque TaskID for the lifetime of the process.
type Task struct {
	TaskID     string
	State      TaskState
	Progress   int
	Stage      Stage
	Message    string
	Statistics Statistics
	Error      string
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// ProgressEvent is one update delivered to a task's subscribers.
type ProgressEvent struct {
	TaskID     string
	Progress   int
	Stage      Stage
	Message    string
	ElapsedSec float64
	// Terminal is set on the final event of a task's lifetime: "complete" or
	// "error" in the wire vocabulary of §6.4.
	Terminal   bool
	Statistics *Statistics
	Err        string
}
