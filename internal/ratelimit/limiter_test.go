package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestCanRequestUnderMax(t *testing.T) {
	l := New(Config{MaxRequests: 2, Window: time.Minute})
	if !l.CanRequest() {
		t.Fatalf("expected first request to be allowed")
	}
	l.RecordRequest()
	if !l.CanRequest() {
		t.Fatalf("expected second request to be allowed (count 1 < max 2)")
	}
}

func TestCanRequestBlocksAtMax(t *testing.T) {
	l := New(Config{MaxRequests: 1, Window: time.Minute})
	l.RecordRequest()
	if l.CanRequest() {
		t.Fatalf("expected request to be blocked at max")
	}
}

func TestCanRequestEnforcesMinInterval(t *testing.T) {
	l := New(Config{MaxRequests: 100, Window: time.Minute, MinInterval: time.Hour})
	l.RecordRequest()
	if l.CanRequest() {
		t.Fatalf("expected request to be blocked by min interval")
	}
}

func TestWindowPruneAllowsAfterExpiry(t *testing.T) {
	l := New(Config{MaxRequests: 1, Window: 20 * time.Millisecond})
	l.RecordRequest()
	if l.CanRequest() {
		t.Fatalf("expected blocked immediately after hitting max")
	}
	time.Sleep(30 * time.Millisecond)
	if !l.CanRequest() {
		t.Fatalf("expected allowed once the window has passed")
	}
}

func TestExecuteRecordsAndRuns(t *testing.T) {
	l := New(Config{MaxRequests: 5, Window: time.Minute})
	ran := false
	err := l.Execute(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("expected fn to run, err=%v ran=%v", err, ran)
	}
}

func TestWaitForSlotRespectsContextCancellation(t *testing.T) {
	l := New(Config{MaxRequests: 1, Window: time.Hour})
	l.RecordRequest()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := l.WaitForSlot(ctx)
	if err == nil {
		t.Fatalf("expected context deadline error")
	}
}

func TestRegistryGetIsStable(t *testing.T) {
	r := NewRegistry(Config{MaxRequests: 10})
	l1 := r.Get("anthropic")
	l2 := r.Get("anthropic")
	if l1 != l2 {
		t.Fatalf("expected stable limiter instance per name")
	}
}
