package task_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.bryk.io/tacoq/task"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", task.StatusPending.String())
	assert.Equal(t, "running", task.StatusRunning.String())
	assert.Equal(t, "completed", task.StatusCompleted.String())
	assert.Equal(t, "unknown", task.Status(99).String())
}

func TestHasFinished(t *testing.T) {
	tk := task.Task{ID: task.NewID(), Status: task.StatusRunning}
	assert.False(t, tk.HasFinished())

	tk.Status = task.StatusCompleted
	assert.True(t, tk.HasFinished())
}

func TestNewID(t *testing.T) {
	a := task.NewID()
	b := task.NewID()
	assert.NotEqual(t, a, b)
}

func TestAssignmentRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	a := task.Assignment{
		ID:         task.NewID(),
		TaskKind:   "image.resize",
		WorkerKind: "image-worker",
		InputData:  []byte(`{"width":100}`),
		Priority:   200,
		TTL:        30 * time.Second,
		CreatedAt:  now,
		OtelCtxCarrier: map[string]string{
			"traceparent": "00-0000000000000000000000000000000a-000000000000000b-01",
		},
	}
	assert.Equal(t, task.Kind("image.resize"), a.TaskKind)
	assert.Equal(t, uint8(200), a.Priority)
	assert.Len(t, a.OtelCtxCarrier, 1)
}
