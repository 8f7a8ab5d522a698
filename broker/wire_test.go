package broker

import (
	"testing"
	"time"

	"go.bryk.io/tacoq/task"
)

func TestAssignmentWireRoundTrip(t *testing.T) {
	in := task.Assignment{
		ID:             task.NewID(),
		TaskKind:       "resize-image",
		WorkerKind:     "image-workers",
		InputData:      []byte(`{"width":100}`),
		Priority:       42,
		TTL:            90 * time.Second,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
		OtelCtxCarrier: map[string]string{"traceparent": "00-abc-def-01"},
	}

	data, err := marshalAssignment(in)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}
	out, err := unmarshalAssignment(data)
	if err != nil {
		t.Fatalf("unmarshal: %s", err)
	}

	if out.ID != in.ID || out.TaskKind != in.TaskKind || out.WorkerKind != in.WorkerKind {
		t.Fatalf("identity fields mismatch: %+v != %+v", out, in)
	}
	if string(out.InputData) != string(in.InputData) {
		t.Fatalf("input data mismatch")
	}
	if out.Priority != in.Priority {
		t.Fatalf("priority mismatch")
	}
	if out.TTL != in.TTL {
		t.Fatalf("ttl mismatch: %s != %s", out.TTL, in.TTL)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("created_at mismatch: %s != %s", out.CreatedAt, in.CreatedAt)
	}
	if out.OtelCtxCarrier["traceparent"] != in.OtelCtxCarrier["traceparent"] {
		t.Fatalf("otel carrier mismatch")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatal("expected error for missing URL")
	}
	if err := (Config{URL: "amqp://localhost"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestRoutingKeys(t *testing.T) {
	if got := routingKey("image-workers"); got != "tasks.image-workers" {
		t.Fatalf("got %q", got)
	}
	if got := relayRoutingKey("abc"); got != "lifecycle.abc" {
		t.Fatalf("got %q", got)
	}
}
