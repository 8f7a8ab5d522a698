package amqp

import (
	"crypto/tls"

	xlog "go.bryk.io/tacoq/log"
)

// Option provides a functional style configuration mechanism for new
// session instances (publishers and consumers).
type Option func(*session) error

// WithLogger sets the logger instance used to report internal session
// events. If not provided, all output is discarded by default.
func WithLogger(ll xlog.Logger) Option {
	return func(s *session) error {
		if ll != nil {
			s.log = ll
		}
		return nil
	}
}

// WithName sets a custom identifier for the session instance. If not
// provided, a random identifier is automatically generated; prefixed with
// "publisher" or "consumer" depending on the entity type.
func WithName(name string) Option {
	return func(s *session) error {
		s.name = name
		return nil
	}
}

// WithPrefetch adjusts the channel's quality-of-service settings, limiting
// the number of unacknowledged deliveries ("count") and/or the total size in
// bytes ("size") the server will deliver before requiring acknowledgments.
// A "count" of 0 disables the limit.
func WithPrefetch(count int, size int) Option {
	return func(s *session) error {
		s.prefetchCount = count
		s.prefetchSize = size
		return nil
	}
}

// WithTLS sets the TLS settings to use when establishing the connection to
// the broker, required when connecting through the "amqps" scheme.
func WithTLS(conf *tls.Config) Option {
	return func(s *session) error {
		s.tlsConf = conf
		return nil
	}
}

// WithTopology declares the broker topology (exchanges, queues and bindings)
// the session instance expects to be available. Missing entities are
// created automatically; existing ones are validated against the provided
// settings.
func WithTopology(topology Topology) Option {
	return func(s *session) error {
		s.topology = topology
		return nil
	}
}
