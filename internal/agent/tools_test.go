package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/streamloop/agentcore/internal/sessiontree"
	"github.com/streamloop/agentcore/pkg/models"
)

const echoSchema = `{
	"type": "object",
	"properties": {"x": {"type": "integer"}},
	"required": ["x"]
}`

func TestDispatchToolCallRejectsArgsFailingSchema(t *testing.T) {
	toolCall := models.ContentBlock{Type: models.BlockToolCall, ToolCallID: "call-1", ToolCallName: "echo", Arguments: json.RawMessage(`{"x":"not an int"}`)}
	driver := &scriptedDriver{responses: []*models.Message{
		{Role: models.RoleAssistant, StopReason: models.StopReasonToolUse, Content: []models.ContentBlock{toolCall}},
		{Role: models.RoleAssistant, StopReason: models.StopReasonStop, Content: []models.ContentBlock{models.TextBlock("done")}},
	}}

	tree := sessiontree.New()
	registry := NewRegistry()
	registry.Register(&echoTool{name: "echo"})
	ag := New(Config{
		Model:       "test-model",
		Driver:      driver,
		Tree:        tree,
		Tools:       registry,
		ToolSchemas: map[string]json.RawMessage{"echo": json.RawMessage(echoSchema)},
	})

	if err := ag.Prompt(context.Background(), "run echo", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	branch, err := tree.BuildSessionContext()
	if err != nil {
		t.Fatalf("BuildSessionContext: %v", err)
	}
	if len(branch) != 4 {
		t.Fatalf("expected 4 messages in branch, got %d: %+v", len(branch), branch)
	}
	toolResult := branch[2]
	if toolResult.Role != models.RoleToolResult || !toolResult.ResultIsError {
		t.Fatalf("expected a schema-validation error tool_result at index 2, got %+v", toolResult)
	}
}

func TestDispatchToolCallSkipsValidationWithoutRegisteredSchema(t *testing.T) {
	toolCall := models.ContentBlock{Type: models.BlockToolCall, ToolCallID: "call-1", ToolCallName: "echo", Arguments: json.RawMessage(`{"anything":true}`)}
	driver := &scriptedDriver{responses: []*models.Message{
		{Role: models.RoleAssistant, StopReason: models.StopReasonToolUse, Content: []models.ContentBlock{toolCall}},
		{Role: models.RoleAssistant, StopReason: models.StopReasonStop, Content: []models.ContentBlock{models.TextBlock("done")}},
	}}
	ag, tree := newTestAgent(t, driver)

	if err := ag.Prompt(context.Background(), "run echo", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	branch, err := tree.BuildSessionContext()
	if err != nil {
		t.Fatalf("BuildSessionContext: %v", err)
	}
	if branch[2].ResultIsError {
		t.Fatalf("expected unvalidated tool call to succeed, got error result: %+v", branch[2])
	}
}
