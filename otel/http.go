package otel

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func defaultHTTPSettings(op *Operator) []otelhttp.Option {
	return []otelhttp.Option{
		otelhttp.WithPropagators(op.propagator),
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	}
}

// HTTPClient provides the interface of the regular HTTP client but with
// automatic instrumentation of requests — spans are started for every
// outbound call and trace context is propagated via headers. Used by
// package relay to instrument its HTTP client's RoundTripper.
func (op *Operator) HTTPClient(base http.RoundTripper, opts ...otelhttp.Option) http.Client {
	settings := append(defaultHTTPSettings(op),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
	)
	settings = append(settings, opts...)
	if base == nil {
		base = http.DefaultTransport
	}
	return http.Client{
		Transport: otelhttp.NewTransport(base, settings...),
	}
}
