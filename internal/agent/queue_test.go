package agent

import (
	"testing"
	"time"

	"github.com/streamloop/agentcore/pkg/models"
)

func TestUpdateByTimestampMatchesFirstUserOnly(t *testing.T) {
	ts := time.Unix(1000, 0)
	q := &messageQueue{}
	q.enqueue(models.Message{Role: models.RoleToolResult, Timestamp: ts}) // same timestamp, different role
	q.enqueue(models.Message{Role: models.RoleUser, UserText: "old", Timestamp: ts})
	q.enqueue(models.Message{Role: models.RoleUser, UserText: "other", Timestamp: ts})

	ok := q.updateByTimestamp(ts.UnixNano(), "new")
	if !ok {
		t.Fatalf("expected update to report true")
	}
	if q.items[0].Role != models.RoleToolResult {
		t.Fatalf("non-user message at same timestamp should be untouched")
	}
	if q.items[1].UserText != "" || len(q.items[1].UserContent) != 1 || q.items[1].UserContent[0].Text != "new" {
		t.Fatalf("expected first user message updated, got %+v", q.items[1])
	}
	if q.items[2].UserText != "other" {
		t.Fatalf("expected second user message untouched, got %+v", q.items[2])
	}
	if q.items[1].Timestamp != ts {
		t.Fatalf("expected timestamp preserved")
	}
}

func TestUpdateByTimestampNoMatch(t *testing.T) {
	q := &messageQueue{}
	q.enqueue(models.Message{Role: models.RoleUser, UserText: "a", Timestamp: time.Unix(1, 0)})
	if q.updateByTimestamp(time.Unix(999, 0).UnixNano(), "x") {
		t.Fatalf("expected no match")
	}
}

func TestRemoveByTimestampFirstMatch(t *testing.T) {
	ts := time.Unix(5, 0)
	q := &messageQueue{}
	q.enqueue(models.Message{Role: models.RoleUser, UserText: "a", Timestamp: ts})
	q.enqueue(models.Message{Role: models.RoleUser, UserText: "b", Timestamp: ts})

	ok := q.removeByTimestamp(ts.UnixNano())
	if !ok || q.len() != 1 || q.items[0].UserText != "b" {
		t.Fatalf("expected first match removed, got len=%d items=%+v ok=%v", q.len(), q.items, ok)
	}
}

func TestClearEmptiesQueue(t *testing.T) {
	q := &messageQueue{}
	q.enqueue(models.Message{Role: models.RoleUser, UserText: "a", Timestamp: time.Now()})
	q.clear()
	if q.len() != 0 {
		t.Fatalf("expected empty queue after clear")
	}
}

func TestPopFrontFIFO(t *testing.T) {
	q := &messageQueue{}
	q.enqueue(models.Message{Role: models.RoleUser, UserText: "a"})
	q.enqueue(models.Message{Role: models.RoleUser, UserText: "b"})

	m, ok := q.popFront()
	if !ok || m.UserText != "a" {
		t.Fatalf("expected a first, got %+v", m)
	}
	m, ok = q.popFront()
	if !ok || m.UserText != "b" {
		t.Fatalf("expected b second, got %+v", m)
	}
	if _, ok := q.popFront(); ok {
		t.Fatalf("expected empty queue")
	}
}
