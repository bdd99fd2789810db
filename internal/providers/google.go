package providers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"google.golang.org/genai"

	"github.com/streamloop/agentcore/internal/eventstream"
	"github.com/streamloop/agentcore/internal/transcript"
	"github.com/streamloop/agentcore/pkg/models"
)

// GoogleConfig configures a GoogleDriver.
type GoogleConfig struct {
	APIKey string
	Log    *slog.Logger
}

// GoogleDriver adapts Gemini's GenerateContentStream iterator API (Go
// 1.23 range-over-func) to the normalized event taxonomy. Gemini has no
// block-lifecycle events of its own: each streamed response delivers
// complete Parts, so text/tool-call blocks open and close within the
// same normalized delta/end pair.
type GoogleDriver struct {
	BaseDriver
	client *genai.Client
}

type googleWireRequest struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

// NewGoogleDriver constructs a driver bound to a single API key.
func NewGoogleDriver(ctx context.Context, cfg GoogleConfig) (*GoogleDriver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GoogleDriver{BaseDriver: NewBaseDriver(cfg.Log), client: client}, nil
}

func (d *GoogleDriver) Name() string { return "google" }

func (d *GoogleDriver) BuildRequest(model string, messages []models.Message, system string, tools []models.ToolDef, opts Options) (WireRequest, error) {
	repaired, _ := transcript.Repair(messages)
	repaired = transcript.MergeConsecutiveUserMessages(repaired)

	var contents []*genai.Content
	for _, m := range repaired {
		switch m.Role {
		case models.RoleUser:
			contents = append(contents, genai.NewContentFromText(textOf(m.TextOrBlocks()), genai.RoleUser))
		case models.RoleAssistant:
			var parts []*genai.Part
			for _, b := range m.Content {
				switch b.Type {
				case models.BlockText:
					parts = append(parts, genai.NewPartFromText(b.Text))
				case models.BlockToolCall:
					var args map[string]any
					if len(b.Arguments) > 0 {
						_ = json.Unmarshal(b.Arguments, &args)
					}
					parts = append(parts, genai.NewPartFromFunctionCall(b.ToolCallName, args))
				}
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case models.RoleToolResult:
			result := map[string]any{"result": toolResultText(m)}
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromFunctionResponse(m.ToolName, result)},
			})
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*opts.MaxTokens)
	}
	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		cfg.Temperature = &t
	}
	if len(tools) > 0 {
		cfg.Tools = convertGoogleTools(tools)
	}

	return googleWireRequest{model: model, contents: contents, config: cfg}, nil
}

func (d *GoogleDriver) Stream(ctx context.Context, req WireRequest, opts Options) *eventstream.Stream[AssistantEvent, *models.Message] {
	out := eventstream.New[AssistantEvent, *models.Message]()
	wire, ok := req.(googleWireRequest)
	if !ok {
		out.End(nil, errors.New("google: invalid wire request type"))
		return out
	}

	go func() {
		if ctx.Err() != nil {
			d.emitAborted(out, wire.model)
			return
		}
		partial := newPartial("google", wire.model)
		out.Push(AssistantEvent{Kind: EventStart, Partial: partial.Clone()})

		iterSeq := d.client.Models.GenerateContentStream(ctx, wire.model, wire.contents, wire.config)
		for resp, err := range iterSeq {
			if ctx.Err() != nil {
				partial = stripTransient(partial)
				partial.StopReason = models.StopReasonAborted
				partial.ErrorMessage = "aborted mid-stream"
				out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
				out.End(partial, ctx.Err())
				return
			}
			if err != nil {
				partial.StopReason = models.StopReasonError
				partial.ErrorMessage = err.Error()
				out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
				out.End(partial, err)
				return
			}
			d.applyResponse(resp, partial, out)
		}

		if partial.StopReason == "" {
			partial.StopReason = models.StopReasonStop
		}
		partial.Usage.Recompute("google", wire.model, nil)
		out.Push(AssistantEvent{Kind: EventDone, Partial: partial.Clone()})
		out.End(partial, nil)
	}()

	return out
}

func (d *GoogleDriver) emitAborted(out *eventstream.Stream[AssistantEvent, *models.Message], model string) {
	partial := newPartial("google", model)
	partial.StopReason = models.StopReasonAborted
	partial.ErrorMessage = "aborted before stream open"
	out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
	out.End(partial, errors.New(partial.ErrorMessage))
}

func (d *GoogleDriver) applyResponse(resp *genai.GenerateContentResponse, partial *models.Message, out *eventstream.Stream[AssistantEvent, *models.Message]) {
	if resp.UsageMetadata != nil {
		partial.Usage.Input = int64(resp.UsageMetadata.PromptTokenCount)
		partial.Usage.Output = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		if reason := string(candidate.FinishReason); reason != "" {
			partial.StopReason = MapStopReason(reason)
		}
		for _, part := range candidate.Content.Parts {
			switch {
			case part.Text != "":
				idx := len(partial.Content)
				partial.Content = append(partial.Content, models.ContentBlock{Type: models.BlockText, Text: part.Text})
				out.Push(AssistantEvent{Kind: EventTextStart, BlockIndex: idx, Partial: partial.Clone()})
				out.Push(AssistantEvent{Kind: EventTextDelta, BlockIndex: idx, TextDelta: part.Text, Partial: partial.Clone()})
				out.Push(AssistantEvent{Kind: EventTextEnd, BlockIndex: idx, Partial: partial.Clone()})
			case part.FunctionCall != nil:
				args, _ := json.Marshal(part.FunctionCall.Args)
				idx := len(partial.Content)
				partial.Content = append(partial.Content, models.ContentBlock{
					Type: models.BlockToolCall, ToolCallID: part.FunctionCall.ID,
					ToolCallName: part.FunctionCall.Name, Arguments: args,
				})
				out.Push(AssistantEvent{Kind: EventToolCallStart, BlockIndex: idx, Partial: partial.Clone()})
				out.Push(AssistantEvent{Kind: EventToolCallEnd, BlockIndex: idx, Partial: partial.Clone()})
				partial.StopReason = models.StopReasonToolUse
			}
		}
	}
}

func convertGoogleTools(tools []models.ToolDef) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema *genai.Schema
		if len(t.Schema) > 0 {
			_ = json.Unmarshal(t.Schema, &schema)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
