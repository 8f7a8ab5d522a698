// Package task defines the data model shared by publishers, workers and
// the relay client: task identity, the wire messages exchanged through the
// broker, and the aggregate view of a task's lifecycle returned by the
// relay service.
package task

import (
	"time"

	"github.com/google/uuid"
)

// ID uniquely identifies a task instance.
type ID = uuid.UUID

// NewID generates a new, random task identifier.
func NewID() ID {
	return uuid.New()
}

// ParseID parses the canonical string form of an ID, as used on the wire
// by the relay service.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}

// Kind identifies the type of work a task represents; it is used to select
// the handler and codecs that process it.
type Kind string

// WorkerKind identifies the class of worker process capable of handling a
// given task kind; a single worker process advertises exactly one kind.
type WorkerKind string

// Status describes where a task currently stands in its lifecycle.
type Status int

const (
	// StatusPending means the task has been assigned but no worker has
	// reported starting it yet.
	StatusPending Status = iota

	// StatusRunning means a worker has accepted the task and is executing it.
	StatusRunning

	// StatusCompleted means a worker finished executing the task, either
	// successfully or with an error.
	StatusCompleted
)

// String returns a textual representation of a status value.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Assignment is the message a publisher sends to hand a task to a worker.
// It is published to the task exchange and routed to the queue matching
// its WorkerKind.
type Assignment struct {
	// ID uniquely identifies the task instance.
	ID ID

	// TaskKind selects the handler that will process the task.
	TaskKind Kind

	// WorkerKind selects the queue (and therefore the worker pool) the
	// assignment is routed to.
	WorkerKind WorkerKind

	// InputData is the encoded task input, interpreted by the handler's
	// input codec.
	InputData []byte

	// Priority adjusts delivery order relative to other pending assignments
	// on the same queue; higher values are delivered first. Only has an
	// effect if the destination queue was declared with a matching
	// `x-max-priority`.
	Priority uint8

	// TTL bounds how long the assignment may wait undelivered before the
	// broker discards it. Zero means no expiration.
	TTL time.Duration

	// CreatedAt records when the publisher produced the assignment.
	CreatedAt time.Time

	// OtelCtxCarrier carries the publisher's trace context so the worker can
	// continue the same trace when it starts executing the task.
	OtelCtxCarrier map[string]string
}

// Running is the message a worker publishes once it accepts an assignment
// and begins executing it. Delivery is best-effort: publishing failures do
// not prevent the task from executing.
type Running struct {
	// ID of the task that started running.
	ID ID

	// StartedAt records when the worker began executing the task.
	StartedAt time.Time

	// ExecutedBy identifies the worker process instance handling the task,
	// useful to correlate logs across services.
	ExecutedBy string
}

// Completed is the message a worker publishes once a task finishes
// executing, successfully or not. Unlike Running, publishing this message
// must be confirmed by the broker before the originating delivery is
// acknowledged, so that a crash between execution and acknowledgment
// results in redelivery rather than a silently lost result.
type Completed struct {
	// ID of the task that finished.
	ID ID

	// CompletedAt records when the worker finished executing the task.
	CompletedAt time.Time

	// OutputData is the encoded task output (or, if IsError is true, the
	// encoded ErrorPayload) produced by the handler.
	OutputData []byte

	// IsError indicates OutputData holds a serialized ErrorPayload rather
	// than a successful handler result.
	IsError bool
}

// ErrorPayload is the JSON shape used to serialize a handler failure into
// Completed.OutputData when IsError is true.
type ErrorPayload struct {
	// Type names the kind of failure: a Go error type, or "panic" when the
	// handler invocation recovered from a panic.
	Type string `json:"type"`

	// Message describes the failure.
	Message string `json:"message"`
}

// Task is the aggregate view of a task's lifecycle, as returned by the
// relay client. It merges the Assignment, Running and Completed events
// associated with a given task ID.
type Task struct {
	ID          ID
	Status      Status
	TaskKind    Kind
	WorkerKind  WorkerKind
	StartedAt   *time.Time
	ExecutedBy  string
	CompletedAt *time.Time
	OutputData  []byte
	IsError     bool
}

// HasFinished reports whether the task reached a terminal status.
func (t Task) HasFinished() bool {
	return t.Status == StatusCompleted
}
