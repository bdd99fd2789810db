package providers

import (
	"testing"

	"github.com/streamloop/agentcore/pkg/models"
)

func TestMapStopReason(t *testing.T) {
	cases := map[string]models.StopReason{
		"end_turn":       models.StopReasonStop,
		"stop":           models.StopReasonStop,
		"stop_sequence":  models.StopReasonStop,
		"max_tokens":     models.StopReasonLength,
		"length":         models.StopReasonLength,
		"tool_use":       models.StopReasonToolUse,
		"tool_calls":     models.StopReasonToolUse,
		"function_call":  models.StopReasonToolUse,
		"refusal":        models.StopReasonError,
		"content_filter": models.StopReasonError,
		"something_else": models.StopReasonStop,
	}
	for native, want := range cases {
		if got := MapStopReason(native); got != want {
			t.Errorf("MapStopReason(%q) = %q, want %q", native, got, want)
		}
	}
}

func TestFindBlockIndex(t *testing.T) {
	idx0, idx1 := 0, 1
	content := []models.ContentBlock{
		{Type: models.BlockText, Index: &idx0},
		{Type: models.BlockToolCall, Index: &idx1},
	}
	if i := findBlockIndex(content, 1); i != 1 {
		t.Fatalf("findBlockIndex(1) = %d, want 1", i)
	}
	if i := findBlockIndex(content, 99); i != -1 {
		t.Fatalf("findBlockIndex(99) = %d, want -1", i)
	}
}

func TestNewPartial(t *testing.T) {
	p := newPartial("anthropic", "claude-x")
	if p.Role != models.RoleAssistant || p.Provider != "anthropic" || p.Model != "claude-x" {
		t.Fatalf("unexpected partial: %+v", p)
	}
}
