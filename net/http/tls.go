package http

import (
	"crypto/tls"
	"crypto/x509"

	"go.bryk.io/tacoq/errors"
)

// recommendedCiphers provides a default list of secure/modern ciphers, used
// when TLS.SupportedCiphers is left empty.
var recommendedCiphers = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// recommendedCurves provides a sane list of curves with assembly
// implementations for performance and constant time to protect against
// side-channel attacks, used when TLS.PreferredCurves is left empty.
var recommendedCurves = []tls.CurveID{
	tls.CurveP521,
	tls.CurveP384,
	tls.CurveP256,
	tls.X25519,
}

// TLS defines available settings when enabling secure TLS communications
// for a relay client connection.
type TLS struct {
	// Client certificate, PEM-encoded. Only required for mutual TLS.
	Cert []byte

	// Client private key, PEM-encoded. Only required for mutual TLS.
	PrivateKey []byte

	// List of ciphers to allow.
	SupportedCiphers []uint16

	// Preferred curves configuration.
	PreferredCurves []tls.CurveID

	// Whether to include system CAs.
	IncludeSystemCAs bool

	// Custom certificate authorities to trust in addition to (or instead
	// of) the system pool.
	CustomCAs [][]byte
}

// Expand returns a TLS configuration instance based on the provided
// settings.
func (t TLS) Expand() (*tls.Config, error) {
	// Prepare cert pool
	var cp *x509.CertPool
	var err error
	if t.IncludeSystemCAs {
		cp, err = x509.SystemCertPool()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load system CAs")
		}
	} else {
		cp = x509.NewCertPool()
	}

	// Append custom CA certs
	for _, c := range t.CustomCAs {
		if !cp.AppendCertsFromPEM(c) {
			return nil, errors.New("failed to append provided CA certificates")
		}
	}

	// Setup ciphers and curves
	ciphers := t.SupportedCiphers
	if len(ciphers) == 0 {
		ciphers = recommendedCiphers
	}
	curves := t.PreferredCurves
	if len(curves) == 0 {
		curves = recommendedCurves
	}

	conf := &tls.Config{
		CipherSuites:     ciphers,
		CurvePreferences: curves,
		RootCAs:          cp,
		MinVersion:       tls.VersionTLS12,
	}

	// Client certificate is optional: the relay client may connect to a
	// relay that only requires server-side TLS.
	if len(t.Cert) > 0 && len(t.PrivateKey) > 0 {
		cert, err := tls.X509KeyPair(t.Cert, t.PrivateKey)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load key pair")
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	return conf, nil
}
