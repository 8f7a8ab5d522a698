package broker

import (
	"encoding/json"
	"time"

	"go.bryk.io/tacoq/task"
)

// Wire representations use explicit snake_case JSON field names and
// RFC3339 timestamps: the relay service and any other broker consumer is
// not assumed to be written in Go, so the on-the-wire shape is kept
// independent of the Go struct's field names.

type wireAssignment struct {
	ID             task.ID           `json:"id"`
	TaskKind       string            `json:"task_kind"`
	WorkerKind     string            `json:"worker_kind"`
	InputData      []byte            `json:"input_data"`
	Priority       uint8             `json:"priority"`
	TTLSeconds     float64           `json:"ttl_seconds"`
	CreatedAt      time.Time         `json:"created_at"`
	OtelCtxCarrier map[string]string `json:"otel_ctx_carrier,omitempty"`
}

func marshalAssignment(a task.Assignment) ([]byte, error) {
	return json.Marshal(wireAssignment{
		ID:             a.ID,
		TaskKind:       string(a.TaskKind),
		WorkerKind:     string(a.WorkerKind),
		InputData:      a.InputData,
		Priority:       a.Priority,
		TTLSeconds:     a.TTL.Seconds(),
		CreatedAt:      a.CreatedAt.UTC(),
		OtelCtxCarrier: a.OtelCtxCarrier,
	})
}

func unmarshalAssignment(data []byte) (task.Assignment, error) {
	var w wireAssignment
	if err := json.Unmarshal(data, &w); err != nil {
		return task.Assignment{}, err
	}
	return task.Assignment{
		ID:             w.ID,
		TaskKind:       task.Kind(w.TaskKind),
		WorkerKind:     task.WorkerKind(w.WorkerKind),
		InputData:      w.InputData,
		Priority:       w.Priority,
		TTL:            time.Duration(w.TTLSeconds * float64(time.Second)),
		CreatedAt:      w.CreatedAt,
		OtelCtxCarrier: w.OtelCtxCarrier,
	}, nil
}

type wireRunning struct {
	ID         task.ID   `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	ExecutedBy string    `json:"executed_by"`
}

func marshalRunning(r task.Running) ([]byte, error) {
	return json.Marshal(wireRunning{
		ID:         r.ID,
		StartedAt:  r.StartedAt.UTC(),
		ExecutedBy: r.ExecutedBy,
	})
}

type wireCompleted struct {
	ID          task.ID   `json:"id"`
	CompletedAt time.Time `json:"completed_at"`
	OutputData  []byte    `json:"output_data"`
	IsError     bool      `json:"is_error"`
}

func marshalCompleted(c task.Completed) ([]byte, error) {
	return json.Marshal(wireCompleted{
		ID:          c.ID,
		CompletedAt: c.CompletedAt.UTC(),
		OutputData:  c.OutputData,
		IsError:     c.IsError,
	})
}
