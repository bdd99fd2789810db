package models

import (
	"testing"
	"time"
)

func TestMessageTextOrBlocks(t *testing.T) {
	m := NewUserMessage("hello", time.Unix(1000, 0))
	blocks := m.TextOrBlocks()
	if len(blocks) != 1 || blocks[0].Type != BlockText || blocks[0].Text != "hello" {
		t.Fatalf("expected single text block, got %+v", blocks)
	}
}

func TestMessageTextOrBlocksPrefersExplicitContent(t *testing.T) {
	m := NewUserMessageFromBlocks([]ContentBlock{ImageBlock("abc", "image/png")}, nil, time.Now())
	blocks := m.TextOrBlocks()
	if len(blocks) != 1 || blocks[0].Type != BlockImage {
		t.Fatalf("expected image block passthrough, got %+v", blocks)
	}
}

func TestIsErroredOrAborted(t *testing.T) {
	cases := []struct {
		reason StopReason
		want   bool
	}{
		{StopReasonStop, false},
		{StopReasonToolUse, false},
		{StopReasonError, true},
		{StopReasonAborted, true},
	}
	for _, c := range cases {
		m := &Message{Role: RoleAssistant, StopReason: c.reason}
		if got := m.IsErroredOrAborted(); got != c.want {
			t.Errorf("reason=%s: got %v, want %v", c.reason, got, c.want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Message{
		Role: RoleAssistant,
		Content: []ContentBlock{
			{Type: BlockToolCall, ToolCallID: "t1", Arguments: []byte(`{"a":1}`)},
		},
	}
	clone := orig.Clone()
	clone.Content[0].Arguments[0] = 'X'
	if string(orig.Content[0].Arguments) == string(clone.Content[0].Arguments) {
		t.Fatalf("expected clone to be independent of original")
	}
}

func TestToolCallsFiltersNonAssistant(t *testing.T) {
	m := &Message{Role: RoleUser}
	if calls := m.ToolCalls(); calls != nil {
		t.Fatalf("expected nil tool calls for user message, got %v", calls)
	}
}
