package otel

import (
	"context"

	"go.bryk.io/tacoq/log"
	"go.bryk.io/tacoq/metadata"
	"go.opentelemetry.io/otel/baggage"
	otelCodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	apiTrace "go.opentelemetry.io/otel/trace"
)

// Component instances provide an abstraction to support the main
// primitives required to instrument an application (or individual portions
// of one): logs and traces. Component attributes are attached by default
// to all spans started from it.
type Component struct {
	ot         apiTrace.Tracer               // underlying OTEL tracer
	spp        SpanInterceptor               // custom span pre-processor
	attrs      Attributes                    // base component attributes
	propagator propagation.TextMapPropagator // context propagation mechanism
	log.Logger                               // embedded logger instance
}

// Start a new span with the provided details. Remember to call "End()"
// to properly mark the span as completed.
//
//	task := op.Start(context.Background(), "my-task")
//	defer task.End(err)
func (cmp *Component) Start(ctx context.Context, name string, options ...SpanOption) Span {
	// bare span instance
	sp := cmp.newSpan(name)
	for _, opt := range options {
		opt(sp)
	}

	// if available, add baggage values to the span's context
	existingBgg := metadata.New()
	for _, m := range baggage.FromContext(ctx).Members() {
		existingBgg.Set(m.Key(), m.Value())
	}
	bgg, _ := baggage.New(members(join(sp.bgg.Values(), existingBgg.Values()))...)
	ctx = baggage.ContextWithBaggage(ctx, bgg)

	// create OTEL span
	sp.opts = append(sp.opts, apiTrace.WithAttributes(expand(sp.attrs.Values())...))
	sp.ctx, sp.span = cmp.ot.Start(ctx, name, sp.opts...)
	sp.span.SetStatus(otelCodes.Unset, "")
	return sp
}

// SpanFromContext returns a reference to the current span stored in the
// context. You can use this reference to add events to it, but you can't
// close it directly.
//
// You can also use the `Context()` of the managed span to initiate child
// tasks of your own.
func (cmp *Component) SpanFromContext(ctx context.Context) SpanManaged {
	return &span{
		cp:    cmp.propagator,                // context propagation mechanism
		ctx:   ctx,                           // provided context
		span:  apiTrace.SpanFromContext(ctx), // restored span from provided context
		attrs: metadata.New(),                // empty attributes
	}
}

// Export the current trace context as a flat string carrier, suitable for
// attaching to a task assignment before it crosses a process boundary (for
// example a message broker payload) and later restoring it with Restore.
func (cmp *Component) Export(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	cmp.propagator.Inject(ctx, carrier)
	return carrier
}

// Restore a previously exported trace context carrier, returning a context
// that, when used to start a new span, establishes a parent -> child
// relationship with the span that produced the carrier.
func (cmp *Component) Restore(carrier map[string]string) context.Context {
	ctx := context.Background()
	bgg := baggage.FromContext(ctx)            // restore baggage
	ctx = baggage.ContextWithBaggage(ctx, bgg) // add baggage to context
	ctx = cmp.propagator.Extract(ctx, propagation.MapCarrier(carrier))
	spanCtx := apiTrace.SpanContextFromContext(ctx) // restore span context
	if spanCtx.IsRemote() {
		ctx = apiTrace.ContextWithRemoteSpanContext(ctx, spanCtx)
	} else {
		ctx = apiTrace.ContextWithSpanContext(ctx, spanCtx)
	}
	return ctx
}

// Default span structure.
func (cmp *Component) newSpan(name string) *span {
	return &span{
		name:  name,                        // task name
		kind:  SpanKindUnspecified,         // default kind
		spp:   cmp.spp,                     // custom span pre-processor
		bgg:   metadata.New(),              // no baggage by default
		attrs: metadata.FromMap(cmp.attrs), // inherit base component attributes
		cp:    cmp.propagator,              // inherit context propagation mechanism
		opts:  []apiTrace.SpanStartOption{},
	}
}
