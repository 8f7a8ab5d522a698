// Package handler maps task kinds to typed Go functions, adapting each
// one to the untyped []byte-in/[]byte-out shape the worker runtime
// dispatches against.
package handler

import (
	"context"
	"sync"

	"go.bryk.io/tacoq/codec"
	"go.bryk.io/tacoq/errors"
	"go.bryk.io/tacoq/task"
)

// ErrNotRegistered is returned by Lookup when no handler is registered
// for the requested task kind.
var ErrNotRegistered = errors.New("no handler registered for task kind")

// Entry is the untyped form a registered handler is reduced to once
// stored in a Registry. Invoke receives the raw assignment payload and
// returns the raw result payload, performing decode/encode internally
// using the codecs supplied at registration time.
type Entry struct {
	Kind task.Kind
	Invoke func(ctx context.Context, in []byte) ([]byte, error)

	// decodeErr reports whether err originated from the input codec's
	// Decode step, as opposed to the handler body or the output codec's
	// Encode step. The worker runtime uses this to tell a malformed
	// payload (never retried) apart from a handler-level failure.
	decodeErr func(error) bool
}

// DecodeFailed reports whether err was produced while decoding the task
// input, rather than while running the handler body or encoding its
// result.
func (e Entry) DecodeFailed(err error) bool {
	if e.decodeErr == nil || err == nil {
		return false
	}
	return e.decodeErr(err)
}

// Registry holds the set of task kinds a worker knows how to execute.
// It is safe for concurrent registration and lookup; a later call to
// Register for a kind already present silently replaces the earlier
// entry (invariant: last registration wins), matching how the broker
// dispatches purely by kind string with no versioning of its own.
type Registry struct {
	entries sync.Map // task.Kind -> Entry
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register binds fn, a typed handler for In/Out, to kind using the given
// input and output codecs. Errors returned by fn propagate unchanged to
// the worker runtime, which classifies them as handler failures distinct
// from decode/encode failures.
func Register[In, Out any](r *Registry, kind task.Kind, fn func(context.Context, In) (Out, error), in codec.Codec[In], out codec.Codec[Out]) {
	r.entries.Store(kind, Entry{
		Kind: kind,
		Invoke: func(ctx context.Context, raw []byte) ([]byte, error) {
			input, err := in.Decode(raw)
			if err != nil {
				return nil, errors.Wrapf(decodeError{err}, "decode input for %s", kind)
			}
			output, err := fn(ctx, input)
			if err != nil {
				return nil, err
			}
			encoded, err := out.Encode(output)
			if err != nil {
				return nil, errors.Wrapf(err, "encode output for %s", kind)
			}
			return encoded, nil
		},
		decodeErr: func(err error) bool {
			var de decodeError
			return errors.As(err, &de)
		},
	})
}

// decodeError marks an error produced by an input codec's Decode step.
type decodeError struct{ error }

func (e decodeError) Unwrap() error { return e.error }

// RegisterJSON is a convenience wrapper around Register using
// schema-validated JSON records (codec.Record) for both the input and
// output types.
func RegisterJSON[In, Out any](r *Registry, kind task.Kind, fn func(context.Context, In) (Out, error)) error {
	in, err := codec.Record[In]()
	if err != nil {
		return errors.Wrapf(err, "register %s: input schema", kind)
	}
	out, err := codec.Record[Out]()
	if err != nil {
		return errors.Wrapf(err, "register %s: output schema", kind)
	}
	Register(r, kind, fn, in, out)
	return nil
}

// Lookup returns the handler entry registered for kind.
func (r *Registry) Lookup(kind task.Kind) (Entry, bool) {
	v, ok := r.entries.Load(kind)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Kinds returns the list of task kinds currently registered. The order
// is unspecified.
func (r *Registry) Kinds() []task.Kind {
	var kinds []task.Kind
	r.entries.Range(func(key, _ any) bool {
		kinds = append(kinds, key.(task.Kind))
		return true
	})
	return kinds
}
