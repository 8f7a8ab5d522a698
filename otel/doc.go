/*
Package otel provides utilities to instrument worker and relay processes
using OpenTelemetry tracing.

Proper instrumentation is crucial to monitor system behavior and to detect
problems, regressions and bugs, a practice usually referred to as
observability. This package focuses on the tracing vertical: spans,
attributes, events, and the propagation of trace context across process
boundaries (for example, from a publisher process to a worker process via
a task assignment carrier).

	options := []OperatorOption{
		WithServiceName("tacoq-worker"),
		WithServiceVersion("0.1.0"),
		WithLogger(xlog.WithZero(xlog.ZeroOptions{PrettyPrint: true})),
		WithResourceAttributes(Attributes{
			"worker.kind": "image-resize",
		}),
	}
	op, err := NewOperator(options...)
	if err != nil {
		panic(err)
	}

	task := op.Start(context.Background(), "task.execute", WithSpanKind(SpanKindConsumer))
	defer task.End(err)

Traces

Instrumentation is collected at transaction level. A transaction is a unit of
work relevant enough to be registered, measured for performance and observed
for events, behavior and correctness. In the observability context a
transaction is named a "Span". A root span can be the source for additional
child spans; in distributed systems these child spans can even be performed
by remote components. To properly preserve this parent -> child relationship,
certain information about the span state (its context) must be propagated
when communication occurs between different processes.

Context propagation

Export/Restore on a Component convert a trace context to and from the flat
string carrier shape used to travel alongside a task assignment across the
message broker: the publishing process exports the active span's context
before publishing the task, and the worker process restores it before
starting the span that represents the task's execution, producing a single
trace that spans both processes.
*/
package otel
