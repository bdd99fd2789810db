package providers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/streamloop/agentcore/internal/eventstream"
	"github.com/streamloop/agentcore/internal/streamjson"
	"github.com/streamloop/agentcore/internal/transcript"
	"github.com/streamloop/agentcore/pkg/models"
)

// maxEmptyStreamEvents is the number of consecutive events that produce no
// observable chunk before the stream is declared malformed.
const maxEmptyStreamEvents = 50

// AnthropicConfig configures an AnthropicDriver.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Log          *slog.Logger
}

// AnthropicDriver adapts Anthropic's Messages streaming API to the
// normalized event taxonomy.
type AnthropicDriver struct {
	BaseDriver
	client anthropic.Client
}

// anthropicWireRequest is the wire-shaped payload BuildRequest produces.
type anthropicWireRequest struct {
	params anthropic.MessageNewParams
}

// NewAnthropicDriver constructs a driver bound to a single API key.
func NewAnthropicDriver(cfg AnthropicConfig) (*AnthropicDriver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicDriver{
		BaseDriver: NewBaseDriver(cfg.Log),
		client:     anthropic.NewClient(opts...),
	}, nil
}

func (d *AnthropicDriver) Name() string { return "anthropic" }

// BuildRequest applies transcript repair and Anthropic's strict
// alternation requirement, then converts canonical messages to the
// Messages API params shape.
func (d *AnthropicDriver) BuildRequest(model string, messages []models.Message, system string, tools []models.ToolDef, opts Options) (WireRequest, error) {
	repaired, _ := transcript.Repair(messages)
	repaired = transcript.DemoteUnsignedThinking(repaired)
	repaired = transcript.MergeConsecutiveUserMessages(repaired)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = int64(*opts.MaxTokens)
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}

	msgs, err := convertAnthropicMessages(repaired)
	if err != nil {
		return nil, err
	}
	params.Messages = msgs

	if len(tools) > 0 {
		toolParams, err := convertAnthropicTools(tools)
		if err != nil {
			return nil, err
		}
		params.Tools = toolParams
	}

	return anthropicWireRequest{params: params}, nil
}

// Stream opens the Anthropic Messages streaming call and emits normalized
// events until done/error.
func (d *AnthropicDriver) Stream(ctx context.Context, req WireRequest, opts Options) *eventstream.Stream[AssistantEvent, *models.Message] {
	out := eventstream.New[AssistantEvent, *models.Message]()
	wire, ok := req.(anthropicWireRequest)
	if !ok {
		out.End(nil, errors.New("anthropic: invalid wire request type"))
		return out
	}

	go func() {
		if ctx.Err() != nil {
			d.emitAborted(out, string(wire.params.Model))
			return
		}

		partial := newPartial("anthropic", string(wire.params.Model))
		out.Push(AssistantEvent{Kind: EventStart, Partial: partial.Clone()})

		stream := d.client.Messages.NewStreaming(ctx, wire.params)
		d.processStream(ctx, stream, out, partial, string(wire.params.Model))
	}()

	return out
}

func (d *AnthropicDriver) emitAborted(out *eventstream.Stream[AssistantEvent, *models.Message], model string) {
	partial := newPartial("anthropic", model)
	partial.StopReason = models.StopReasonAborted
	partial.ErrorMessage = "aborted before stream open"
	out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
	out.End(partial, errors.New(partial.ErrorMessage))
}

func (d *AnthropicDriver) processStream(ctx context.Context, stream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}, out *eventstream.Stream[AssistantEvent, *models.Message], partial *models.Message, model string) {
	var toolInput []byte
	inThinking := false
	emptyEvents := 0

	for stream.Next() {
		if ctx.Err() != nil {
			partial = stripTransient(partial)
			partial.StopReason = models.StopReasonAborted
			partial.ErrorMessage = "aborted mid-stream"
			out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
			out.End(partial, ctx.Err())
			return
		}

		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			partial.Usage.Input = int64(ms.Message.Usage.InputTokens)
			processed = true

		case "content_block_start":
			cbs := event.AsContentBlockStart()
			idx := int(cbs.Index)
			switch cbs.ContentBlock.Type {
			case "thinking":
				inThinking = true
				partial.Content = append(partial.Content, models.ContentBlock{Type: models.BlockThinking, Index: &idx})
				out.Push(AssistantEvent{Kind: EventThinkingStart, BlockIndex: idx, Partial: partial.Clone()})
				processed = true
			case "text":
				partial.Content = append(partial.Content, models.ContentBlock{Type: models.BlockText, Index: &idx})
				out.Push(AssistantEvent{Kind: EventTextStart, BlockIndex: idx, Partial: partial.Clone()})
				processed = true
			case "tool_use":
				toolUse := cbs.ContentBlock.AsToolUse()
				toolInput = toolInput[:0]
				partial.Content = append(partial.Content, models.ContentBlock{
					Type: models.BlockToolCall, Index: &idx,
					ToolCallID: toolUse.ID, ToolCallName: toolUse.Name,
				})
				out.Push(AssistantEvent{Kind: EventToolCallStart, BlockIndex: idx, Partial: partial.Clone()})
				processed = true
			}

		case "content_block_delta":
			cbd := event.AsContentBlockDelta()
			idx := int(cbd.Index)
			i := findBlockIndex(partial.Content, idx)
			switch cbd.Delta.Type {
			case "text_delta":
				if cbd.Delta.Text != "" && i >= 0 {
					partial.Content[i].Text += cbd.Delta.Text
					out.Push(AssistantEvent{Kind: EventTextDelta, BlockIndex: idx, TextDelta: cbd.Delta.Text, Partial: partial.Clone()})
					processed = true
				}
			case "thinking_delta":
				if cbd.Delta.Thinking != "" && i >= 0 {
					partial.Content[i].Thinking += cbd.Delta.Thinking
					out.Push(AssistantEvent{Kind: EventThinkingDelta, BlockIndex: idx, ThinkingDelta: cbd.Delta.Thinking, Partial: partial.Clone()})
					processed = true
				}
			case "signature_delta":
				if i >= 0 {
					partial.Content[i].ThinkingSignature += cbd.Delta.Signature
					processed = true
				}
			case "input_json_delta":
				if cbd.Delta.PartialJSON != "" {
					toolInput = append(toolInput, cbd.Delta.PartialJSON...)
					if i >= 0 {
						partial.Content[i].PartialJSON = string(toolInput)
						if parsed, err := streamjson.ParsePartial(string(toolInput)); err == nil {
							partial.Content[i].Arguments = parsed
						}
					}
					out.Push(AssistantEvent{Kind: EventToolCallDelta, BlockIndex: idx, JSONDelta: cbd.Delta.PartialJSON, Partial: partial.Clone()})
					processed = true
				}
			}

		case "content_block_stop":
			cbs := event.AsContentBlockStop()
			idx := int(cbs.Index)
			i := findBlockIndex(partial.Content, idx)
			if i >= 0 {
				switch partial.Content[i].Type {
				case models.BlockThinking:
					inThinking = false
					out.Push(AssistantEvent{Kind: EventThinkingEnd, BlockIndex: idx, Partial: partial.Clone()})
				case models.BlockText:
					out.Push(AssistantEvent{Kind: EventTextEnd, BlockIndex: idx, Partial: partial.Clone()})
				case models.BlockToolCall:
					if parsed, err := streamjson.ParseStrict(string(toolInput)); err == nil {
						partial.Content[i].Arguments = parsed
					} else {
						partial.Content[i].Arguments = json.RawMessage(`{}`)
					}
					partial.Content[i] = partial.Content[i].StripTransientFields()
					out.Push(AssistantEvent{Kind: EventToolCallEnd, BlockIndex: idx, Partial: partial.Clone()})
				}
				partial.Content[i].Index = nil
			}
			processed = true

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				partial.Usage.Output = int64(md.Usage.OutputTokens)
			}
			if stop := string(md.Delta.StopReason); stop != "" {
				partial.StopReason = MapStopReason(stop)
			}
			processed = true

		case "message_stop":
			partial.Usage.Recompute("anthropic", model, nil)
			out.Push(AssistantEvent{Kind: EventDone, Partial: partial.Clone()})
			out.End(partial, nil)
			return

		case "error":
			partial.StopReason = models.StopReasonError
			partial.ErrorMessage = "anthropic stream error"
			out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
			out.End(partial, errors.New(partial.ErrorMessage))
			return
		}

		if processed {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				err := &MalformedStreamError{Provider: "anthropic", Count: emptyEvents}
				partial.StopReason = models.StopReasonError
				partial.ErrorMessage = err.Error()
				out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
				out.End(partial, err)
				return
			}
		}
		_ = inThinking
	}

	if err := stream.Err(); err != nil {
		partial.StopReason = models.StopReasonError
		partial.ErrorMessage = err.Error()
		out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
		out.End(partial, err)
		return
	}
	out.End(partial, nil)
}

func stripTransient(m *models.Message) *models.Message {
	for i := range m.Content {
		m.Content[i] = m.Content[i].StripTransientFields()
	}
	return m
}

func convertAnthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case models.RoleUser:
			var blocks []anthropic.ContentBlockParamUnion
			for _, b := range m.TextOrBlocks() {
				switch b.Type {
				case models.BlockText:
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case models.BlockImage:
					blocks = append(blocks, anthropic.NewImageBlockBase64(b.ImageMimeType, b.ImageData))
				}
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			for _, b := range m.Content {
				switch b.Type {
				case models.BlockText:
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case models.BlockThinking:
					blocks = append(blocks, anthropic.NewThinkingBlock(b.ThinkingSignature, b.Thinking))
				case models.BlockToolCall:
					blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolCallID, b.Arguments, b.ToolCallName))
				}
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case models.RoleToolResult:
			content := make([]anthropic.ToolResultBlockParamContentUnion, 0, len(m.ResultContent))
			for _, item := range m.ResultContent {
				if item.Type == "text" {
					content = append(content, anthropic.ToolResultBlockParamContentUnion{OfText: &anthropic.TextBlockParam{Text: item.Text}})
				}
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, "", m.ResultIsError, content...)))
		}
	}
	return out, nil
}

func convertAnthropicTools(tools []models.ToolDef) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.Schema) > 0 {
			if err := json.Unmarshal(t.Schema, &schema); err != nil {
				return nil, err
			}
		}
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: schema["properties"],
		}, t.Name))
	}
	return out, nil
}
