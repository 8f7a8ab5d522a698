package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.bryk.io/tacoq/broker"
	"go.bryk.io/tacoq/codec"
	"go.bryk.io/tacoq/handler"
	"go.bryk.io/tacoq/otel"
	"go.bryk.io/tacoq/task"
)

// fakeAckNacker records exactly one terminal call against a delivery.
type fakeAckNacker struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAckNacker) Ack() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = true
	return nil
}

func (f *fakeAckNacker) Nack(requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = true
	f.requeue = requeue
	return nil
}

// fakeWorkerClient feeds a fixed delivery stream without any real AMQP
// connection.
type fakeWorkerClient struct {
	deliveries chan broker.Delivery
}

func newFakeWorkerClient() *fakeWorkerClient {
	return &fakeWorkerClient{deliveries: make(chan broker.Delivery, 64)}
}

func (f *fakeWorkerClient) Connect(context.Context, task.WorkerKind, int) error { return nil }
func (f *fakeWorkerClient) Listen(context.Context) (<-chan broker.Delivery, error) {
	return f.deliveries, nil
}
func (f *fakeWorkerClient) Disconnect() error {
	close(f.deliveries)
	return nil
}

// fakePublisherClient records lifecycle events instead of publishing them
// to a broker.
type fakePublisherClient struct {
	mu           sync.Mutex
	running      []task.Running
	completed    []task.Completed
	completedErr error
}

func (f *fakePublisherClient) Connect(context.Context) error { return nil }

func (f *fakePublisherClient) PublishRunning(_ context.Context, r task.Running) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = append(f.running, r)
	return nil
}

func (f *fakePublisherClient) PublishCompleted(_ context.Context, c task.Completed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completedErr != nil {
		return f.completedErr
	}
	f.completed = append(f.completed, c)
	return nil
}

func (f *fakePublisherClient) Disconnect() error { return nil }

func (f *fakePublisherClient) snapshot() (running []task.Running, completed []task.Completed) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]task.Running(nil), f.running...), append([]task.Completed(nil), f.completed...)
}

func testWorker(t *testing.T, cfg Config, registry *handler.Registry) (*Worker, *fakeWorkerClient, *fakePublisherClient) {
	t.Helper()
	op, err := otel.NewOperator()
	if err != nil {
		t.Fatalf("otel.NewOperator: %s", err)
	}
	wc := newFakeWorkerClient()
	pc := &fakePublisherClient{}
	if cfg.Name == "" {
		cfg.Name = "test-worker"
	}
	if cfg.Kind == "" {
		cfg.Kind = "test-kind"
	}
	if cfg.PrefetchCount == 0 {
		cfg.PrefetchCount = 10
	}
	return newWithClients(cfg, registry, wc, pc, op), wc, pc
}

func assignment(kind task.Kind, input string, priority uint8) task.Assignment {
	return task.Assignment{
		ID:         task.NewID(),
		TaskKind:   kind,
		WorkerKind: "test-kind",
		InputData:  []byte(input),
		Priority:   priority,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestHappyPath(t *testing.T) {
	r := handler.NewRegistry()
	c, err := codecForTest()
	if err != nil {
		t.Fatalf("codec: %s", err)
	}
	handler.Register(r, task.Kind("double"), func(_ context.Context, in int) (int, error) {
		return in * 2, nil
	}, c, c)

	w, wc, pc := testWorker(t, Config{}, r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	ack := &fakeAckNacker{}
	wc.deliveries <- broker.Delivery{
		Assignment: assignment("double", "21", 0),
		Handle:     ack,
	}

	deadline := time.After(2 * time.Second)
	for {
		_, completed := pc.snapshot()
		if len(completed) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for completion")
		case <-time.After(10 * time.Millisecond):
		}
	}

	running, completed := pc.snapshot()
	if len(running) != 1 {
		t.Fatalf("expected 1 running event, got %d", len(running))
	}
	if completed[0].IsError {
		t.Fatalf("expected success, got error payload: %s", completed[0].OutputData)
	}
	if string(completed[0].OutputData) != "42" {
		t.Fatalf("got output %s", completed[0].OutputData)
	}

	ack.mu.Lock()
	acked := ack.acked
	ack.mu.Unlock()
	if !acked {
		t.Fatal("expected delivery to be acked")
	}

	w.IssueShutdown()
	if err := w.WaitForShutdown(context.Background()); err != nil {
		t.Fatalf("wait for shutdown: %s", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %s", err)
	}
}

func TestHandlerExceptionProducesErrorPayload(t *testing.T) {
	r := handler.NewRegistry()
	c, err := codecForTest()
	if err != nil {
		t.Fatalf("codec: %s", err)
	}
	handler.Register(r, task.Kind("boom"), func(_ context.Context, _ int) (int, error) {
		panic("boom")
	}, c, c)

	w, wc, pc := testWorker(t, Config{}, r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	ack := &fakeAckNacker{}
	wc.deliveries <- broker.Delivery{
		Assignment: assignment("boom", "1", 0),
		Handle:     ack,
	}

	deadline := time.After(2 * time.Second)
	for {
		_, completed := pc.snapshot()
		if len(completed) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for completion")
		case <-time.After(10 * time.Millisecond):
		}
	}
	_, completed := pc.snapshot()
	if !completed[0].IsError {
		t.Fatal("expected an error completion")
	}

	w.IssueShutdown()
	_ = w.WaitForShutdown(context.Background())
}

func TestMissingHandlerNacksWithoutRequeue(t *testing.T) {
	r := handler.NewRegistry()
	w, wc, pc := testWorker(t, Config{}, r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	ack := &fakeAckNacker{}
	wc.deliveries <- broker.Delivery{
		Assignment: assignment("unknown", "1", 0),
		Handle:     ack,
	}

	deadline := time.After(2 * time.Second)
	for {
		ack.mu.Lock()
		nacked := ack.nacked
		ack.mu.Unlock()
		if nacked {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for nack")
		case <-time.After(10 * time.Millisecond):
		}
	}

	ack.mu.Lock()
	requeue := ack.requeue
	ack.mu.Unlock()
	if requeue {
		t.Fatal("expected nack without requeue")
	}
	if _, completed := pc.snapshot(); len(completed) != 0 {
		t.Fatal("expected no completion event for an unroutable task")
	}

	w.IssueShutdown()
	_ = w.WaitForShutdown(context.Background())
}

func TestGracefulShutdownDrainsInFlight(t *testing.T) {
	r := handler.NewRegistry()
	c, err := codecForTest()
	if err != nil {
		t.Fatalf("codec: %s", err)
	}
	release := make(chan struct{})
	handler.Register(r, task.Kind("slow"), func(_ context.Context, in int) (int, error) {
		<-release
		return in, nil
	}, c, c)

	w, wc, pc := testWorker(t, Config{PrefetchCount: 10}, r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	const n = 5
	for i := 0; i < n; i++ {
		wc.deliveries <- broker.Delivery{
			Assignment: assignment("slow", "1", 0),
			Handle:     &fakeAckNacker{},
		}
	}

	deadline := time.After(2 * time.Second)
	for w.InFlight() < n {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for in-flight tasks, got %d", w.InFlight())
		case <-time.After(10 * time.Millisecond):
		}
	}

	w.IssueShutdown()

	shutdownDone := make(chan struct{})
	go func() {
		_ = w.WaitForShutdown(context.Background())
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		t.Fatal("shutdown completed before in-flight tasks were released")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	select {
	case <-shutdownDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shutdown after releasing tasks")
	}

	if w.InFlight() != 0 {
		t.Fatalf("expected empty in-flight set, got %d", w.InFlight())
	}
	if _, completed := pc.snapshot(); len(completed) != n {
		t.Fatalf("expected %d completions, got %d", n, len(completed))
	}
}

func TestCompletedPublishFailureLeavesDeliveryUnacked(t *testing.T) {
	r := handler.NewRegistry()
	c, err := codecForTest()
	if err != nil {
		t.Fatalf("codec: %s", err)
	}
	handler.Register(r, task.Kind("echo"), func(_ context.Context, in int) (int, error) {
		return in, nil
	}, c, c)

	w, wc, pc := testWorker(t, Config{}, r)
	pc.completedErr = broker.ErrPublishRejected
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	ack := &fakeAckNacker{}
	wc.deliveries <- broker.Delivery{
		Assignment: assignment("echo", "1", 0),
		Handle:     ack,
	}

	// Wait for the task to start (the running event is recorded even when
	// the completed publish is rigged to fail), then for its unit to reach
	// a terminal state; the delivery must then be neither acked nor nacked
	// so the broker redelivers it after the connection drops.
	deadline := time.After(2 * time.Second)
	for {
		running, _ := pc.snapshot()
		if len(running) == 1 && w.InFlight() == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the task to reach a terminal state")
		case <-time.After(10 * time.Millisecond):
		}
	}
	ack.mu.Lock()
	acked, nacked := ack.acked, ack.nacked
	ack.mu.Unlock()
	if acked || nacked {
		t.Fatalf("expected delivery left untouched, got acked=%v nacked=%v", acked, nacked)
	}

	w.IssueShutdown()
	_ = w.WaitForShutdown(context.Background())
}

func codecForTest() (codec.Codec[int], error) {
	return codec.Record[int]()
}
