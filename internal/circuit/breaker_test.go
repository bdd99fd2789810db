package circuit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 2, Timeout: time.Hour})
	boom := errors.New("boom")

	err1 := b.Execute(context.Background(), func(context.Context) error { return boom })
	if err1 != boom {
		t.Fatalf("expected underlying error through, got %v", err1)
	}
	if b.State() != Closed {
		t.Fatalf("expected still closed after 1 failure, got %s", b.State())
	}

	b.Execute(context.Background(), func(context.Context) error { return boom })
	if b.State() != Open {
		t.Fatalf("expected open after 2 failures, got %s", b.State())
	}

	err3 := b.Execute(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err3, ErrOpen) {
		t.Fatalf("expected ErrOpen while circuit open, got %v", err3)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	boom := errors.New("boom")

	b.Execute(context.Background(), func(context.Context) error { return boom })
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(15 * time.Millisecond)

	b.Execute(context.Background(), func(context.Context) error { return nil })
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after 1 success (threshold 2), got %s", b.State())
	}

	b.Execute(context.Background(), func(context.Context) error { return nil })
	if b.State() != Closed {
		t.Fatalf("expected closed after success threshold reached, got %s", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Timeout: 10 * time.Millisecond})
	boom := errors.New("boom")

	b.Execute(context.Background(), func(context.Context) error { return boom })
	time.Sleep(15 * time.Millisecond)

	// First call after timeout transitions to half-open and runs; make it fail.
	b.Execute(context.Background(), func(context.Context) error { return boom })
	if b.State() != Open {
		t.Fatalf("expected re-open after half-open failure, got %s", b.State())
	}
}

func TestExecuteWithResult(t *testing.T) {
	b := New(Config{})
	v, err := ExecuteWithResult(b, context.Background(), func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("unexpected result: %d, %v", v, err)
	}
}

func TestRegistryGetIsStable(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 3})
	b1 := r.Get("svc-a")
	b2 := r.Get("svc-a")
	if b1 != b2 {
		t.Fatalf("expected same breaker instance for repeated Get")
	}
}

func TestRegistryOpenNames(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, Timeout: time.Hour})
	b := r.Get("svc-a")
	b.Execute(context.Background(), func(context.Context) error { return errors.New("x") })
	names := r.OpenNames()
	if len(names) != 1 || names[0] != "svc-a" {
		t.Fatalf("expected [svc-a] open, got %v", names)
	}
}
