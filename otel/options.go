package otel

import (
	xlog "go.bryk.io/tacoq/log"
	sdkTrace "go.opentelemetry.io/otel/sdk/trace"
)

// OperatorOption provide a functional style configuration mechanism
// for observability operator instances.
type OperatorOption func(*Operator) error

// WithServiceName adjust the `service.name` attribute. If no service name is
// provided, the default value "service" will be used.
func WithServiceName(name string) OperatorOption {
	return func(op *Operator) error {
		op.coreAttributes.Set(lblSvcName, name)
		return nil
	}
}

// WithServiceVersion adjust the `service.version` attribute.
func WithServiceVersion(version string) OperatorOption {
	return func(op *Operator) error {
		op.coreAttributes.Set(lblSvcVer, version)
		return nil
	}
}

// WithResourceAttributes allows extending (or overriding) the core attributes used
// globally by the operator. The core attributes must provide information
// at the resource level. These attributes are used to configure the
// operator's tracer and logger instances; are inherited by all spans created
// and included in logged messages.
func WithResourceAttributes(fields Attributes) OperatorOption {
	return func(op *Operator) error {
		op.userAttributes = join(op.userAttributes, fields)
		return nil
	}
}

// WithLogger set the output handler. If not provided, all output is discarded by default.
func WithLogger(ll xlog.Logger) OperatorOption {
	return func(op *Operator) error {
		op.log = ll
		return nil
	}
}

// WithExporter enables a trace (i.e. span) exporter as data sink for the operator.
// If no exporter is set, all traces are discarded by default.
func WithExporter(exp sdkTrace.SpanExporter) OperatorOption {
	return func(op *Operator) error {
		op.exporter = exp
		return nil
	}
}

// WithSampler adjusts the trace sampling strategy used by the operator. The
// default strategy samples all traces.
func WithSampler(sampler sdkTrace.Sampler) OperatorOption {
	return func(op *Operator) error {
		op.sampler = sampler
		return nil
	}
}

// WithSpanInterceptor attaches a custom span pre-processor to the operator's
// main component, and every subsequent child component created from it.
func WithSpanInterceptor(spp SpanInterceptor) OperatorOption {
	return func(op *Operator) error {
		op.spp = spp
		return nil
	}
}
