package agent

import (
	"context"
	"encoding/json"

	"github.com/streamloop/agentcore/internal/toolschema"
	"github.com/streamloop/agentcore/pkg/models"
)

// OnUpdate is a best-effort progress channel a tool may call any number
// of times while it runs. It must not be awaited by the tool and must
// never be treated as part of the tool's final result: updates are
// delivered to observers as toolresult_partial events only, never entered
// into the session tree or sent back to the provider (spec §4.7).
type OnUpdate func(partial string)

// Tool is one invocable capability the agent can dispatch a tool_call
// block to.
type Tool interface {
	Name() string
	Execute(ctx context.Context, toolCallID string, args json.RawMessage, onUpdate OnUpdate) (string, error)
}

// Registry looks up tools by name.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Defs returns the tool definitions the registry currently exposes, for
// building a context envelope's tools list via an external schema source.
// The order follows map iteration: it is unspecified and can differ
// between calls.
func (r *Registry) Defs(schemas map[string]json.RawMessage, descriptions map[string]string) []models.ToolDef {
	out := make([]models.ToolDef, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, models.ToolDef{
			Name:        name,
			Description: descriptions[name],
			Schema:      schemas[name],
		})
	}
	return out
}

// dispatchToolCalls executes every tool_call block in msg sequentially, in
// order, appending a tool_result message to the session tree for each and
// emitting message_end/toolresult_partial events along the way.
func (a *Agent) dispatchToolCalls(ctx context.Context, msg *models.Message) error {
	for _, call := range msg.ToolCalls() {
		result := a.executeOneToolCall(ctx, call)
		id, err := a.tree.AppendMessage(&result, a.cwd, a.systemFingerprint, a.model)
		if err != nil {
			return err
		}
		_ = id
		a.emit(Event{Kind: EventMessageEnd, Message: result.Clone()})
	}
	return nil
}

func (a *Agent) executeOneToolCall(ctx context.Context, call models.ContentBlock) models.Message {
	base := models.Message{
		Role:       models.RoleToolResult,
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolCallName,
	}

	tool, ok := a.tools.Lookup(call.ToolCallName)
	if !ok {
		base.ResultIsError = true
		base.ResultContent = []models.ToolResultItem{{Type: "text", Text: "unknown tool: " + call.ToolCallName}}
		return base
	}

	if schema, ok := a.toolSchemas[call.ToolCallName]; ok {
		if err := toolschema.Validate(schema, call.Arguments); err != nil {
			base.ResultIsError = true
			base.ResultContent = []models.ToolResultItem{{Type: "text", Text: err.Error()}}
			return base
		}
	}

	onUpdate := func(partial string) {
		a.emit(Event{Kind: EventToolResultPartial, ToolCallID: call.ToolCallID, Partial: partial})
	}

	output, err := tool.Execute(ctx, call.ToolCallID, call.Arguments, onUpdate)
	if err != nil {
		base.ResultIsError = true
		if ctx.Err() != nil {
			base.ResultContent = []models.ToolResultItem{{Type: "text", Text: "tool interrupted"}}
		} else {
			base.ResultContent = []models.ToolResultItem{{Type: "text", Text: err.Error()}}
		}
		return base
	}

	base.ResultContent = []models.ToolResultItem{{Type: "text", Text: output}}
	return base
}
