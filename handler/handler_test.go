package handler

import (
	"context"
	"testing"

	"go.bryk.io/tacoq/codec"
	"go.bryk.io/tacoq/task"
)

func mustIntCodec(t *testing.T) codec.Codec[int] {
	t.Helper()
	c, err := codec.Record[int]()
	if err != nil {
		t.Fatalf("Record[int]: %s", err)
	}
	return c
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	c := mustIntCodec(t)
	Register(r, task.Kind("double"), func(_ context.Context, in int) (int, error) {
		return in * 2, nil
	}, c, c)

	entry, ok := r.Lookup("double")
	if !ok {
		t.Fatal("expected handler to be registered")
	}
	out, err := entry.Invoke(context.Background(), []byte("21"))
	if err != nil {
		t.Fatalf("invoke: %s", err)
	}
	if string(out) != "42" {
		t.Fatalf("got %s", out)
	}
}

func TestLaterRegistrationWins(t *testing.T) {
	r := NewRegistry()
	c := mustIntCodec(t)
	Register(r, task.Kind("k"), func(_ context.Context, in int) (int, error) {
		return in, nil
	}, c, c)
	Register(r, task.Kind("k"), func(_ context.Context, in int) (int, error) {
		return in + 100, nil
	}, c, c)

	entry, ok := r.Lookup("k")
	if !ok {
		t.Fatal("expected handler")
	}
	out, err := entry.Invoke(context.Background(), []byte("1"))
	if err != nil {
		t.Fatalf("invoke: %s", err)
	}
	if string(out) != "101" {
		t.Fatalf("expected later registration to win, got %s", out)
	}
}

func TestLookupMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("missing"); ok {
		t.Fatal("expected no handler registered")
	}
}

func TestDecodeFailedClassification(t *testing.T) {
	r := NewRegistry()
	c := mustIntCodec(t)
	Register(r, task.Kind("k"), func(_ context.Context, in int) (int, error) {
		return in, nil
	}, c, c)
	entry, _ := r.Lookup("k")

	_, err := entry.Invoke(context.Background(), []byte(`"not-a-number"`))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !entry.DecodeFailed(err) {
		t.Fatal("expected error to be classified as a decode failure")
	}
}
