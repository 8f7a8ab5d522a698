package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.bryk.io/tacoq/broker"
	"go.bryk.io/tacoq/errors"
	"go.bryk.io/tacoq/handler"
	xlog "go.bryk.io/tacoq/log"
	"go.bryk.io/tacoq/otel"
	"go.bryk.io/tacoq/task"
)

// brokerWorker is the subset of broker.WorkerClient the runtime depends
// on; satisfied structurally by *broker.WorkerClient and, in tests, by an
// in-memory fake.
type brokerWorker interface {
	Connect(ctx context.Context, kind task.WorkerKind, prefetch int) error
	Listen(ctx context.Context) (<-chan broker.Delivery, error)
	Disconnect() error
}

// brokerPublisher is the subset of broker.PublisherClient used to report
// lifecycle events back to the relay.
type brokerPublisher interface {
	Connect(ctx context.Context) error
	PublishRunning(ctx context.Context, r task.Running) error
	PublishCompleted(ctx context.Context, c task.Completed) error
	Disconnect() error
}

// Worker pulls task assignments for a single worker kind and dispatches
// them to handlers registered in its Registry.
type Worker struct {
	cfg             Config
	registry        *handler.Registry
	instrumentation *otel.Operator
	log             xlog.Logger

	wc brokerWorker
	pc brokerPublisher

	sequence uint64 // atomic, log-field only

	inFlight workgroup

	shutdownOnce      sync.Once
	shutdownRequested chan struct{}
	shutdownComplete  chan struct{}
}

// New builds a Worker from cfg, connecting to the broker described by
// cfg.BrokerURL lazily — the connection itself is established by Run.
func New(cfg Config, registry *handler.Registry) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = handler.NewRegistry()
	}

	instrumentation := cfg.Instrumentation
	if instrumentation == nil {
		op, err := otel.NewOperator()
		if err != nil {
			return nil, errors.Wrap(err, "worker: default instrumentation")
		}
		instrumentation = op
	}

	brokerCfg := broker.Config{
		URL:               cfg.BrokerURL,
		TestMode:          cfg.TestMode,
		PublisherConfirms: cfg.PublisherConfirms,
		Logger:            cfg.logger(),
	}
	wc, err := broker.NewWorkerClient(brokerCfg)
	if err != nil {
		return nil, err
	}
	pc, err := broker.NewPublisherClient(brokerCfg)
	if err != nil {
		return nil, err
	}

	return newWithClients(cfg, registry, wc, pc, instrumentation), nil
}

func newWithClients(cfg Config, registry *handler.Registry, wc brokerWorker, pc brokerPublisher, instrumentation *otel.Operator) *Worker {
	return &Worker{
		cfg:               cfg,
		registry:          registry,
		instrumentation:   instrumentation,
		log:               cfg.logger(),
		wc:                wc,
		pc:                pc,
		shutdownRequested: make(chan struct{}),
		shutdownComplete:  make(chan struct{}),
	}
}

// IssueShutdown requests a graceful shutdown: the dispatch loop stops
// accepting new deliveries, but every in-flight task runs to a terminal
// state before the broker connection is closed. Safe to call more than
// once; only the first call has an effect.
func (w *Worker) IssueShutdown() {
	w.shutdownOnce.Do(func() { close(w.shutdownRequested) })
}

// WaitForShutdown blocks until the runtime has fully stopped, or ctx is
// done, whichever happens first.
func (w *Worker) WaitForShutdown(ctx context.Context) error {
	select {
	case <-w.shutdownComplete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the runtime's single public entry point: it connects to the
// broker under exponential backoff, dispatches deliveries until shutdown
// is requested or ctx is done, then drains in-flight tasks and
// disconnects before returning.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.shutdownComplete)

	if err := w.connect(ctx); err != nil {
		return err
	}

	deliveries, err := w.wc.Listen(ctx)
	if err != nil {
		w.cleanup()
		return errors.Wrap(err, "worker: listen")
	}

	w.dispatchLoop(ctx, deliveries)
	w.cleanup()
	return nil
}

// connect brings up both broker roles under exponential backoff with
// jitter: 1s initial interval, factor 2, capped at 15s, unbounded
// retries. Connection failures are logged but never abort Run; only ctx
// cancellation does.
func (w *Worker) connect(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 15 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := w.wc.Connect(ctx, w.cfg.Kind, w.cfg.PrefetchCount); err != nil {
			w.log.WithField("error", err.Error()).Warning("broker worker client connect failed, retrying")
			return struct{}{}, err
		}
		if err := w.pc.Connect(ctx); err != nil {
			w.log.WithField("error", err.Error()).Warning("broker publisher client connect failed, retrying")
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0))
	if err != nil {
		return errors.Wrap(err, "worker: connect")
	}
	w.log.WithFields(xlog.Fields{"name": w.cfg.Name, "kind": string(w.cfg.Kind)}).Info("worker connected")
	return nil
}

// dispatchLoop pulls deliveries until shutdown is requested or ctx is
// done. Each delivery is handed to an independent goroutine tracked by
// the in-flight workgroup; the loop never awaits a unit, which is what
// allows up to PrefetchCount tasks to run concurrently.
func (w *Worker) dispatchLoop(ctx context.Context, deliveries <-chan broker.Delivery) {
	for {
		select {
		case <-w.shutdownRequested:
			return
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				w.log.Warning("broker delivery stream closed")
				return
			}
			w.spawn(ctx, d)
		}
	}
}

func (w *Worker) spawn(ctx context.Context, d broker.Delivery) {
	id := w.inFlight.add()
	go func() {
		defer w.inFlight.done(id)
		w.execute(ctx, d)
	}()
}

// execute runs the DECODE -> RUN -> ENCODE/ENCODE_ERROR -> COMPLETE ->
// ACK/REJECT_PERMANENT/FAIL_DELIVERY state machine for a single delivery.
func (w *Worker) execute(ctx context.Context, d broker.Delivery) {
	a := d.Assignment
	seq := atomic.AddUint64(&w.sequence, 1)
	logger := w.log.WithFields(xlog.Fields{
		"task.id":     a.ID.String(),
		"task.kind":   string(a.TaskKind),
		"worker.kind": string(w.cfg.Kind),
		"sequence":    seq,
	})

	cmp := w.instrumentation.MainComponent()
	spanCtx := cmp.Restore(a.OtelCtxCarrier)
	span := cmp.Start(spanCtx, "task.execute", otel.WithSpanAttributes(otel.Attributes{
		"task.id":     a.ID.String(),
		"task.kind":   string(a.TaskKind),
		"worker.kind": string(w.cfg.Kind),
	}))
	var finalErr error
	defer func() { span.End(finalErr) }()

	// DECODE: handler lookup.
	entry, ok := w.registry.Lookup(a.TaskKind)
	if !ok {
		logger.Warning("no handler registered for task kind")
		finalErr = errors.Wrapf(handler.ErrNotRegistered, "%s", a.TaskKind)
		if err := d.Handle.Nack(false); err != nil {
			logger.WithField("error", err.Error()).Error("failed to nack unroutable delivery")
		}
		return
	}

	// RUN: fire-and-forget running event, then execute the handler body.
	go func() {
		if err := w.pc.PublishRunning(context.Background(), task.Running{
			ID:         a.ID,
			StartedAt:  time.Now().UTC(),
			ExecutedBy: w.cfg.Name,
		}); err != nil {
			logger.WithField("error", err.Error()).Warning("failed to publish running event")
		}
	}()

	outputData, err := w.invoke(span.Context(), entry, a.InputData)

	// ENCODE / ENCODE_ERROR
	isError := err != nil
	if isError {
		finalErr = err
		outputData = serializeError(err)
		if entry.DecodeFailed(err) {
			logger.WithField("error", err.Error()).Warning("malformed task input, handler was not invoked")
		} else {
			logger.WithField("error", err.Error()).Warning("task execution failed")
		}
		if report, rErr := errors.Report(err, errors.CodecJSON(false)); rErr == nil {
			logger.WithField("report", string(report)).Debug("task failure report")
		}
	}

	// COMPLETE
	completed := task.Completed{
		ID:          a.ID,
		CompletedAt: time.Now().UTC(),
		OutputData:  outputData,
		IsError:     isError,
	}
	if err := w.pc.PublishCompleted(ctx, completed); err != nil {
		// FAIL_DELIVERY: leave unacked, rely on broker redelivery.
		logger.WithField("error", err.Error()).Error("failed to publish completed event, leaving delivery unacked")
		return
	}

	// ACK
	if err := d.Handle.Ack(); err != nil {
		logger.WithField("error", err.Error()).Error("failed to ack delivery")
	}
}

// invoke runs entry.Invoke, converting a panic into an error so a single
// misbehaving handler cannot crash the worker process.
func (w *Worker) invoke(ctx context.Context, entry handler.Entry, input []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			if recovered := errors.FromRecover(r); recovered != nil {
				err = recovered
			} else {
				err = errors.Errorf("panic: %v", r)
			}
		}
	}()
	return entry.Invoke(ctx, input)
}

// serializeError encodes err as the task.ErrorPayload JSON shape used on
// the wire when a task completes with an error.
func serializeError(err error) []byte {
	payload := task.ErrorPayload{Type: fmt.Sprintf("%T", err), Message: err.Error()}
	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return []byte(`{"type":"MarshalError","message":"failed to serialize task error"}`)
	}
	return data
}

// cleanup drains the in-flight set before disconnecting both broker
// roles. No individual task has a timeout here by design — see
// Config/Run docs and runner.Supervisor for the enforced shutdown
// deadline.
func (w *Worker) cleanup() {
	w.inFlight.wait()
	if err := w.wc.Disconnect(); err != nil {
		w.log.WithField("error", err.Error()).Warning("error disconnecting worker client")
	}
	if err := w.pc.Disconnect(); err != nil {
		w.log.WithField("error", err.Error()).Warning("error disconnecting publisher client")
	}
}

// InFlight returns the number of task execution units currently running.
// Exposed primarily for tests exercising the prefetch-bound property.
func (w *Worker) InFlight() int {
	return w.inFlight.size()
}
