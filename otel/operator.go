package otel

import (
	"context"

	"go.bryk.io/tacoq/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkResource "go.opentelemetry.io/otel/sdk/resource"
	sdkTrace "go.opentelemetry.io/otel/sdk/trace"
	semConv "go.opentelemetry.io/otel/semconv/v1.20.0"
	apiTrace "go.opentelemetry.io/otel/trace"
)

// Operator provides a single point-of-control for the tracing
// requirements of a worker or relay client process.
type Operator struct {
	*Component                                        // main embedded component
	log            log.Logger                         // logger instance
	spp            SpanInterceptor                    // custom span pre-processor
	coreAttributes Attributes                          // resource attributes
	userAttributes Attributes                          // user-provided additional attributes
	resource       *sdkResource.Resource               // OTEL resource definition
	exporter       sdkTrace.SpanExporter               // trace sync component
	traceProvider  *sdkTrace.TracerProvider             // main traces provider
	propagator     propagation.TextMapPropagator        // default composite propagator
	tracerName     string                               // name for the internal default tracer
	tracer         apiTrace.Tracer                      // default internal tracer
	spanLimits     sdkTrace.SpanLimits                   // default span limits
	props          []propagation.TextMapPropagator       // list of individual text map propagators
	sampler        sdkTrace.Sampler                      // trace sampler strategy used
}

// NewOperator creates a new operator instance. Operators can be used
// to monitor individual services, each with its own exporters or settings.
func NewOperator(options ...OperatorOption) (*Operator, error) {
	// Create instance and apply options.
	op := &Operator{
		log:            log.Discard(),           // discard logs
		coreAttributes: coreAttributes(),         // standard env attributes
		userAttributes: Attributes{},             // no custom attributes
		exporter:       new(noOpExporter),        // discard traces by default
		tracerName:     "tacoq/otel",             // default value for `otel.library.name`
		sampler:        sdkTrace.AlwaysSample(),  // track all traces by default
		spanLimits:     sdkTrace.NewSpanLimits(),
		props: []propagation.TextMapPropagator{
			propagation.Baggage{},      // baggage
			propagation.TraceContext{}, // tracecontext
		},
	}
	if err := op.setup(options...); err != nil {
		return nil, err
	}

	// Attributes. Combine the default core attributes and the user provided data.
	// These attributes are automatically used when logging messages and "inherited"
	// by all spans by adjusting the OTEL resource definition.
	attrs := join(op.coreAttributes, op.userAttributes)
	op.log = op.log.Sub(log.Fields(attrs))
	op.resource = sdkResource.NewWithAttributes(semConv.SchemaURL, attrs.Expand()...)

	// Prepare context propagation mechanisms.
	// If you do not set a propagator the default is to use a `NoOp` option, which
	// means that the trace context will not be shared between multiple services. To
	// avoid that, we set up a composite propagator that consists of a baggage
	// propagator and a trace context propagator.
	op.propagator = propagation.NewCompositeTextMapPropagator(op.props...)

	// Prepare the traces provider.
	op.traceProvider = sdkTrace.NewTracerProvider(
		sdkTrace.WithResource(op.resource),
		sdkTrace.WithSampler(op.sampler),
		sdkTrace.WithRawSpanLimits(op.spanLimits),
		sdkTrace.WithBatcher(op.exporter),
	)

	// Default internal tracer.
	op.tracer = op.traceProvider.Tracer(op.tracerName)

	// Create the default "main" component.
	op.Component = &Component{
		ot:         op.tracer,
		spp:        op.spp,
		propagator: op.propagator,
		attrs:      Attributes{},
		Logger:     op.log,
	}

	// Set internal OTEL error handler and globals.
	otel.SetErrorHandler(errorHandler{ll: op.log})
	otel.SetTextMapPropagator(op.propagator)
	otel.SetTracerProvider(op.traceProvider)
	return op, nil
}

// Shutdown notifies the operator of a pending halt to operations. The
// exporter will perform any cleanup or synchronization required while
// honoring all timeouts and cancellations contained in the provided context.
func (op *Operator) Shutdown(ctx context.Context) {
	_ = op.traceProvider.ForceFlush(ctx)
	_ = op.traceProvider.Shutdown(ctx)
	_ = op.exporter.Shutdown(ctx)
}

// MainComponent returns an access handler for the main observability component
// associated directly with the operator instance. This is useful when a certain
// application element requires access to the instrumentation API, but we want to
// limit its access to the operator handler.
func (op *Operator) MainComponent() *Component {
	return op.Component
}

// Apply provided configuration settings.
func (op *Operator) setup(options ...OperatorOption) error {
	for _, setting := range options {
		if err := setting(op); err != nil {
			return err
		}
	}
	return nil
}

// Simple internal OTEL error handler.
type errorHandler struct {
	ll log.Logger
}

// Handle any error deemed irremediable by the OpenTelemetry operator.
func (eh errorHandler) Handle(err error) {
	if err != nil {
		eh.ll.WithField("error.message", err.Error()).Warning("opentelemetry operator error")
	}
}
