package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.bryk.io/tacoq/relay"
	"go.bryk.io/tacoq/task"
)

func newTestClient(t *testing.T, url string) *relay.Client {
	t.Helper()
	c, err := relay.New(relay.Config{
		BaseURL:              url,
		RetryMaxAttempts:     3,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("relay.New: %s", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %s", err)
	}
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestGetTaskFound(t *testing.T) {
	id := task.NewID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          id.String(),
			"status":      "completed",
			"task_kind":   "demo",
			"worker_kind": "demo-worker",
			"is_error":    false,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask: %s", err)
	}
	if got == nil {
		t.Fatal("expected a task, got nil")
	}
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected completed status, got %s", got.Status)
	}
	if !got.HasFinished() {
		t.Fatal("expected HasFinished to be true")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.GetTask(context.Background(), task.NewID())
	if err != nil {
		t.Fatalf("GetTask: %s", err)
	}
	if got != nil {
		t.Fatal("expected nil task on 404")
	}
}

func TestGetTaskHardFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetTask(context.Background(), task.NewID())
	if err == nil {
		t.Fatal("expected an error for a 403 response")
	}
}

func TestGetTaskRetriesOn5xxThenSucceeds(t *testing.T) {
	id := task.NewID()
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          id.String(),
			"status":      "pending",
			"task_kind":   "demo",
			"worker_kind": "demo-worker",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask: %s", err)
	}
	if got == nil {
		t.Fatal("expected a task after retries succeeded")
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestGetTaskExhaustsRetriesOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetTask(context.Background(), task.NewID())
	if err == nil {
		t.Fatal("expected ErrUnavailable after retries are exhausted")
	}
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	h, err := c.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %s", err)
	}
	if h != relay.HealthOK {
		t.Fatalf("expected HealthOK, got %s", h)
	}
}

func TestCheckHealthUnreachable(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	h, err := c.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth should not error on transport failure: %s", err)
	}
	if h != relay.HealthNotReachable {
		t.Fatalf("expected HealthNotReachable, got %s", h)
	}
}

func TestWaitForTaskPollsUntilFinished(t *testing.T) {
	id := task.NewID()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		status := "pending"
		if n >= 3 {
			status = "completed"
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          id.String(),
			"status":      status,
			"task_kind":   "demo",
			"worker_kind": "demo-worker",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := c.WaitForTask(ctx, id, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForTask: %s", err)
	}
	if !got.HasFinished() {
		t.Fatal("expected a finished task")
	}
}
