// Package worker implements the task-queue worker runtime: it connects to
// the broker, pulls task assignments, dispatches each to a registered
// handler as an independent concurrent unit bounded by the broker's
// prefetch count, reports lifecycle events, and shuts down gracefully.
package worker

import (
	"go.bryk.io/tacoq/errors"
	xlog "go.bryk.io/tacoq/log"
	"go.bryk.io/tacoq/otel"
	"go.bryk.io/tacoq/task"
)

// ErrConfig is returned when a Config fails validation.
var ErrConfig = errors.New("worker: invalid configuration")

// Config holds everything required to build and run a Worker.
type Config struct {
	// Name uniquely identifies this worker process instance; attached to
	// every TaskRunning event as ExecutedBy.
	Name string

	// Kind selects the queue (and therefore the task assignments) this
	// worker consumes.
	Kind task.WorkerKind

	// BrokerURL is the AMQP connection string.
	BrokerURL string

	// TestMode permits destructive broker operations (queue purge).
	TestMode bool

	// PublisherConfirms requires lifecycle events to be confirmed by the
	// broker before the call returns.
	PublisherConfirms bool

	// PrefetchCount bounds the number of unacknowledged deliveries the
	// broker will hand to this worker; the sole concurrency bound of the
	// runtime.
	PrefetchCount int

	// Instrumentation provides the tracer used to open a span per task.
	// A no-op operator is used if nil.
	Instrumentation *otel.Operator

	// Logger receives structured runtime diagnostics. Defaults to a
	// discard logger if nil.
	Logger xlog.Logger
}

// Validate reports whether the configuration can be used to start a
// Worker.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.Wrap(ErrConfig, "name is required")
	}
	if c.Kind == "" {
		return errors.Wrap(ErrConfig, "kind is required")
	}
	if c.BrokerURL == "" {
		return errors.Wrap(ErrConfig, "broker URL is required")
	}
	if c.PrefetchCount <= 0 {
		return errors.Wrap(ErrConfig, "prefetch count must be positive")
	}
	return nil
}

func (c Config) logger() xlog.Logger {
	if c.Logger == nil {
		return xlog.Discard()
	}
	return c.Logger
}
