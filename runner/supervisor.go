// Package runner hosts a worker.Worker for the lifetime of a process: it
// wires OS signals to a graceful shutdown, enforces a shutdown deadline,
// and optionally restarts the worker on source changes in development mode.
package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.bryk.io/tacoq/errors"
	xlog "go.bryk.io/tacoq/log"
	"go.bryk.io/tacoq/worker"
)

// ErrConfig is returned when a Config fails validation.
var ErrConfig = errors.New("runner: invalid configuration")

// Builder constructs a fresh, unstarted worker. The runner calls it once
// at startup and, when reload is enabled, once per detected change — Go
// binaries cannot re-import a module at runtime, so a builder closure
// stands in for the hot-reloaded runtime object.
type Builder func() (*worker.Worker, error)

// Config holds everything required to run a Supervisor.
type Config struct {
	// Build constructs the worker to run. Called at startup and, if Reload
	// is enabled, again after every detected change.
	Build Builder

	// ShutdownTimeout bounds how long the supervisor waits for a graceful
	// shutdown to complete before giving up. Zero means no deadline.
	ShutdownTimeout time.Duration

	// Reload enables a development-only watch on ReloadPath: on any
	// filesystem event the current worker is issued a shutdown, awaited,
	// and a new one is built and started in its place. Not part of
	// correctness; intended for local iteration only.
	Reload bool

	// ReloadPath is the directory watched for changes when Reload is set.
	ReloadPath string

	// Logger receives structured diagnostics. Defaults to a discard logger.
	Logger xlog.Logger
}

func (c Config) Validate() error {
	if c.Build == nil {
		return errors.Wrap(ErrConfig, "build func is required")
	}
	if c.Reload && c.ReloadPath == "" {
		return errors.Wrap(ErrConfig, "reload path is required when reload is enabled")
	}
	return nil
}

func (c Config) logger() xlog.Logger {
	if c.Logger == nil {
		return xlog.Discard()
	}
	return c.Logger
}

// Supervisor owns the worker's process lifecycle: signal handling,
// shutdown deadline enforcement, and optional dev-mode reload.
type Supervisor struct {
	cfg Config
	log xlog.Logger
}

// New builds a Supervisor from cfg.
func New(cfg Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Supervisor{cfg: cfg, log: cfg.logger()}, nil
}

// Run blocks until ctx is done, SIGTERM/SIGINT is received, or a worker
// run fails irrecoverably. It builds and runs workers one at a time,
// replacing the current instance on a detected reload event: the old
// worker reaches shutdown_complete before the new one starts.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var watcher *fsnotify.Watcher
	if s.cfg.Reload {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return errors.Wrap(err, "runner: start file watcher")
		}
		defer func() { _ = w.Close() }()
		if err := w.Add(s.cfg.ReloadPath); err != nil {
			return errors.Wrap(err, "runner: watch reload path")
		}
		watcher = w
		s.log.WithField("path", s.cfg.ReloadPath).Info("watching for reload")
	}

	for {
		w, err := s.cfg.Build()
		if err != nil {
			return errors.Wrap(err, "runner: build worker")
		}

		runDone := make(chan error, 1)
		go func() { runDone <- w.Run(ctx) }()

		reload, err := s.superviseOne(ctx, w, runDone, watcher)
		if err != nil {
			return err
		}
		if !reload {
			return nil
		}
		s.log.Info("reload detected, restarting worker")
	}
}

// superviseOne waits for either ctx cancellation, a reload event, or the
// worker run finishing on its own. It returns (true, nil) when the caller
// should build and start a fresh worker.
func (s *Supervisor) superviseOne(ctx context.Context, w *worker.Worker, runDone <-chan error, watcher *fsnotify.Watcher) (bool, error) {
	var watchEvents <-chan fsnotify.Event
	var watchErrors <-chan error
	if watcher != nil {
		watchEvents = watcher.Events
		watchErrors = watcher.Errors
	}

	select {
	case err := <-runDone:
		// The worker stopped on its own (e.g. Run returned because the
		// delivery stream closed); nothing left to supervise.
		return false, err

	case <-ctx.Done():
		s.shutdown(w)
		<-runDone
		return false, nil

	case ev, ok := <-watchEvents:
		if !ok {
			<-runDone
			return false, nil
		}
		s.log.WithField("event", ev.String()).Info("reload source change detected")
		s.shutdown(w)
		<-runDone
		return true, nil

	case err, ok := <-watchErrors:
		if ok {
			s.log.WithField("error", err.Error()).Warning("file watcher error")
		}
		s.shutdown(w)
		<-runDone
		return false, nil
	}
}

// shutdown issues a graceful shutdown to w and enforces cfg.ShutdownTimeout,
// if set.
func (s *Supervisor) shutdown(w *worker.Worker) {
	w.IssueShutdown()

	waitCtx := context.Background()
	var cancel context.CancelFunc
	if s.cfg.ShutdownTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(waitCtx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := w.WaitForShutdown(waitCtx); err != nil {
		s.log.WithField("error", err.Error()).Warning("shutdown deadline exceeded, abandoning in-flight tasks")
	}
}
