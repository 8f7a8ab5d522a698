package otel

import (
	"context"
	"os"
	"runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	semConv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

const (
	lblSvcName        = string(semConv.ServiceNameKey)
	lblSvcVer         = string(semConv.ServiceVersionKey)
	lblHostArch       = string(semConv.HostArchKey)
	lblHostName       = string(semConv.HostNameKey)
	lblHostOS         = string(semConv.OSTypeKey)
	lblLibName        = string(semConv.TelemetrySDKNameKey)
	lblLibVer         = string(semConv.TelemetrySDKVersionKey)
	lblProcessRuntime = string(semConv.ProcessRuntimeDescriptionKey)
	lblStackTrace     = string(semConv.ExceptionStacktraceKey)
)

// WithExporterStdout is a utility method to automatically setup and attach
// a trace exporter to send the generated telemetry data to standard output.
func WithExporterStdout(pretty bool) OperatorOption {
	return func(op *Operator) error {
		exp, err := ExporterStdout(pretty)
		if err != nil {
			return err
		}
		return WithExporter(exp)(op)
	}
}

// WithExporterOTLP is a utility method to automatically setup and attach a
// trace exporter that sends telemetry data to an OTLP collector over HTTP.
// https://opentelemetry.io/docs/collector/
func WithExporterOTLP(endpoint string, insecure bool, headers map[string]string) OperatorOption {
	return func(op *Operator) error {
		exp, err := ExporterOTLP(endpoint, insecure, headers)
		if err != nil {
			return err
		}
		return WithExporter(exp)(op)
	}
}

// ExporterStdout returns a new trace exporter to send telemetry data
// to standard output.
func ExporterStdout(pretty bool) (*stdouttrace.Exporter, error) {
	var opts []stdouttrace.Option
	if pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	return stdouttrace.New(opts...)
}

// ExporterOTLP returns an initialized OTLP trace exporter instance.
func ExporterOTLP(endpoint string, insecure bool, headers map[string]string) (*otlptrace.Exporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithHeaders(headers),
	}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
}

// coreAttributes returns a set of basic environment attributes.
// https://github.com/open-telemetry/opentelemetry-specification/tree/master/specification
func coreAttributes() Attributes {
	core := Attributes{
		lblSvcName:        "service",
		lblHostOS:         runtime.GOOS,
		lblHostArch:       runtime.GOARCH,
		lblProcessRuntime: runtime.Version(),
		lblLibVer:         otel.Version(),
		lblLibName:        "opentelemetry",
	}
	if host, err := os.Hostname(); err == nil {
		core.Set(lblHostName, host)
	}
	return core
}
