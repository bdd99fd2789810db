package eventstream

import (
	"errors"
	"sync"
	"testing"
)

func TestStreamPushThenEnd(t *testing.T) {
	s := New[string, int]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Push("a")
		s.Push("b")
		s.End(42, nil)
	}()

	events, result, err := s.All()
	wg.Wait()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Fatalf("result = %d, want 42", result)
	}
	if len(events) != 2 || events[0] != "a" || events[1] != "b" {
		t.Fatalf("events = %v", events)
	}
}

func TestStreamPushAfterEndDiscarded(t *testing.T) {
	s := New[string, int]()
	s.Push("a")
	s.End(1, nil)
	s.Push("b") // discarded

	events, _, _ := s.All()
	if len(events) != 1 || events[0] != "a" {
		t.Fatalf("events = %v, want only [a]", events)
	}
}

func TestStreamResultIdempotent(t *testing.T) {
	s := New[string, int]()
	s.End(7, errors.New("boom"))

	r1, e1 := s.Result()
	r2, e2 := s.Result()
	if r1 != r2 || e1 != e2 {
		t.Fatalf("Result() not idempotent: (%v,%v) vs (%v,%v)", r1, e1, r2, e2)
	}
	if e1 == nil || e1.Error() != "boom" {
		t.Fatalf("expected captured error, got %v", e1)
	}
}

func TestStreamEndIdempotent(t *testing.T) {
	s := New[string, int]()
	s.End(1, nil)
	s.End(2, errors.New("ignored"))

	result, err := s.Result()
	if result != 1 || err != nil {
		t.Fatalf("expected first End to win, got (%v, %v)", result, err)
	}
}

func TestStreamNextBlocksUntilAvailable(t *testing.T) {
	s := New[int, struct{}]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		v, ok := s.Next()
		if !ok || v != 99 {
			t.Errorf("expected (99, true), got (%v, %v)", v, ok)
		}
	}()

	s.Push(99)
	s.End(struct{}{}, nil)
	<-done
}
