// Package relay implements the HTTP client used to query the external
// relay service for task state: the aggregate view of a task's lifecycle
// assembled from the Assignment/Running/Completed events a worker publishes
// through the broker.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.bryk.io/tacoq/errors"
	xlog "go.bryk.io/tacoq/log"
	xhttp "go.bryk.io/tacoq/net/http"
	"go.bryk.io/tacoq/otel"
	"go.bryk.io/tacoq/task"
)

// ErrRelay is returned for any non-404, non-retryable status the relay
// service responds with (a "hard" 4xx failure).
var ErrRelay = errors.New("relay: request failed")

// ErrUnavailable is returned when the relay service cannot be reached at
// all after exhausting retries (transport-level failure).
var ErrUnavailable = errors.New("relay: service unavailable")

// ErrConfig is returned when a Config fails validation.
var ErrConfig = errors.New("relay: invalid configuration")

const defaultPollInterval = 250 * time.Millisecond

// Health describes the relay service's reported status.
type Health int

const (
	// HealthUnknown covers any 2xx/3xx response other than a plain 200, and
	// any 5xx response (the service responded, but not affirmatively).
	HealthUnknown Health = iota

	// HealthOK means the relay answered /health with a plain 200.
	HealthOK

	// HealthNotReachable means the request never reached the relay at all
	// (DNS, connection refused, timeout).
	HealthNotReachable
)

// String renders h for logging.
func (h Health) String() string {
	switch h {
	case HealthOK:
		return "healthy"
	case HealthNotReachable:
		return "not_reachable"
	default:
		return "unknown"
	}
}

// Config holds everything required to build a Client.
type Config struct {
	// BaseURL is the relay service's base address, e.g. "http://relay:8080".
	BaseURL string

	// Instrumentation provides the tracer used to instrument outbound
	// requests. A no-op operator is used if nil.
	Instrumentation *otel.Operator

	// TLS enables mutual TLS against the relay service. Left nil, the
	// client dials plain HTTPS using the system trust store.
	TLS *xhttp.TLS

	// Logger receives structured diagnostics. Defaults to a discard logger.
	Logger xlog.Logger

	// RetryMaxAttempts bounds the number of attempts for a retryable
	// request (5xx or transport error). Defaults to 3.
	RetryMaxAttempts uint

	// RetryInitialInterval is the first backoff delay. Defaults to 200ms.
	RetryInitialInterval time.Duration

	// RetryMaxInterval caps the backoff delay. Defaults to 10s.
	RetryMaxInterval time.Duration
}

// Validate reports whether the configuration can be used to build a Client.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.Wrap(ErrConfig, "base URL is required")
	}
	return nil
}

func (c Config) logger() xlog.Logger {
	if c.Logger == nil {
		return xlog.Discard()
	}
	return c.Logger
}

func (c Config) retryMaxAttempts() uint {
	if c.RetryMaxAttempts == 0 {
		return 3
	}
	return c.RetryMaxAttempts
}

func (c Config) retryInitialInterval() time.Duration {
	if c.RetryInitialInterval == 0 {
		return 200 * time.Millisecond
	}
	return c.RetryInitialInterval
}

func (c Config) retryMaxInterval() time.Duration {
	if c.RetryMaxInterval == 0 {
		return 10 * time.Second
	}
	return c.RetryMaxInterval
}

// Client queries the relay service for task state over a single,
// long-lived HTTP client session.
type Client struct {
	cfg Config
	hc  *xhttp.Client
	log xlog.Logger
}

// New builds a disconnected relay Client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, log: cfg.logger()}, nil
}

// Connect establishes the underlying HTTP client session. Must be called
// before any other method.
func (c *Client) Connect(context.Context) error {
	var base http.RoundTripper
	if c.cfg.TLS != nil {
		tlsConf, err := c.cfg.TLS.Expand()
		if err != nil {
			return errors.Wrap(err, "relay: TLS configuration")
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConf
		base = transport
	}

	var opts []xhttp.ClientOption
	if c.cfg.Instrumentation != nil {
		opts = append(opts, xhttp.WithRoundTripper(c.cfg.Instrumentation.HTTPClient(base).Transport))
	} else if base != nil {
		opts = append(opts, xhttp.WithRoundTripper(base))
	}

	hc, err := xhttp.NewClient(opts...)
	if err != nil {
		return errors.Wrap(err, "relay: connect")
	}
	c.hc = hc
	return nil
}

// Disconnect releases the underlying HTTP client's idle connections.
func (c *Client) Disconnect() error {
	if c.hc != nil {
		c.hc.CloseIdleConnections()
	}
	return nil
}

// WithClient runs fn against a connected Client, guaranteeing Disconnect is
// called on return even if fn panics or returns an error — the "scoped
// acquisition with guaranteed release" session pattern.
func WithClient(ctx context.Context, cfg Config, fn func(*Client) error) error {
	c, err := New(cfg)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = c.Disconnect() }()
	return fn(c)
}

// GetTask fetches the aggregate lifecycle view of the task identified by
// id. Returns (nil, nil) when the relay reports 404. 5xx responses and
// transport errors are retried under exponential backoff before giving up
// with ErrUnavailable; any other non-2xx status is reported as ErrRelay.
func (c *Client) GetTask(ctx context.Context, id task.ID) (*task.Task, error) {
	url := fmt.Sprintf("%s/tasks/%s", strings.TrimRight(c.cfg.BaseURL, "/"), id.String())

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.retryInitialInterval()
	bo.MaxInterval = c.cfg.retryMaxInterval()
	bo.Multiplier = 2

	result, err := backoff.Retry(ctx, func() (*task.Task, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			c.log.WithField("error", err.Error()).Warning("relay request failed, retrying")
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, nil
		case resp.StatusCode == http.StatusOK:
			t, err := decodeTask(resp.Body)
			if err != nil {
				return nil, backoff.Permanent(errors.Wrap(err, "relay: decode task"))
			}
			return t, nil
		case isRetryableStatus(resp.StatusCode):
			return nil, errors.Errorf("relay: retryable status %d", resp.StatusCode)
		default:
			return nil, backoff.Permanent(errors.Wrapf(ErrRelay, "status %d", resp.StatusCode))
		}
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.cfg.retryMaxAttempts()))
	if err != nil {
		if errors.Is(err, ErrRelay) {
			return nil, err
		}
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	return result, nil
}

// CheckHealth queries the relay's /health endpoint.
func (c *Client) CheckHealth(ctx context.Context) (Health, error) {
	url := fmt.Sprintf("%s/health", strings.TrimRight(c.cfg.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthNotReachable, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return HealthNotReachable, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		return HealthOK, nil
	}
	return HealthUnknown, nil
}

// WaitForTask polls GetTask every pollInterval (default 250ms, matching the
// relay's own source interval) until the task reaches a terminal status or
// ctx is done. It is a convenience built atop the minimum GetTask contract;
// the relay itself exposes no push/webhook alternative.
func (c *Client) WaitForTask(ctx context.Context, id task.ID, pollInterval time.Duration) (*task.Task, error) {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		t, err := c.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if t != nil && t.HasFinished() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// wireTask mirrors the relay's JSON task representation.
type wireTask struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	TaskKind    string  `json:"task_kind"`
	WorkerKind  string  `json:"worker_kind"`
	StartedAt   *string `json:"started_at"`
	ExecutedBy  string  `json:"executed_by"`
	CompletedAt *string `json:"completed_at"`
	OutputData  []byte  `json:"output_data"`
	IsError     bool    `json:"is_error"`
}

func decodeTask(r io.Reader) (*task.Task, error) {
	var w wireTask
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, err
	}

	id, err := task.ParseID(w.ID)
	if err != nil {
		return nil, err
	}

	t := &task.Task{
		ID:         id,
		TaskKind:   task.Kind(w.TaskKind),
		WorkerKind: task.WorkerKind(w.WorkerKind),
		ExecutedBy: w.ExecutedBy,
		OutputData: w.OutputData,
		IsError:    w.IsError,
	}
	switch w.Status {
	case "running":
		t.Status = task.StatusRunning
	case "completed":
		t.Status = task.StatusCompleted
	default:
		t.Status = task.StatusPending
	}
	if w.StartedAt != nil {
		ts, err := time.Parse(time.RFC3339Nano, *w.StartedAt)
		if err == nil {
			t.StartedAt = &ts
		}
	}
	if w.CompletedAt != nil {
		ts, err := time.Parse(time.RFC3339Nano, *w.CompletedAt)
		if err == nil {
			t.CompletedAt = &ts
		}
	}
	return t, nil
}
