package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/streamloop/agentcore/internal/eventstream"
	"github.com/streamloop/agentcore/internal/streamjson"
	"github.com/streamloop/agentcore/internal/transcript"
	"github.com/streamloop/agentcore/pkg/models"
)

// OpenAIConfig configures an OpenAIDriver.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Log     *slog.Logger
}

// OpenAIDriver adapts OpenAI's chat completion streaming API.
type OpenAIDriver struct {
	BaseDriver
	client *openai.Client
}

type openaiWireRequest struct {
	req openai.ChatCompletionRequest
}

// NewOpenAIDriver constructs a driver bound to a single API key.
func NewOpenAIDriver(cfg OpenAIConfig) (*OpenAIDriver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAIDriver{
		BaseDriver: NewBaseDriver(cfg.Log),
		client:     openai.NewClientWithConfig(config),
	}, nil
}

func (d *OpenAIDriver) Name() string { return "openai" }

func (d *OpenAIDriver) BuildRequest(model string, messages []models.Message, system string, tools []models.ToolDef, opts Options) (WireRequest, error) {
	repaired, _ := transcript.Repair(messages)
	repaired = transcript.MergeConsecutiveUserMessages(repaired)
	repaired = transcript.DropImagesOnTextOnlyModel(repaired, false)

	chatMsgs := make([]openai.ChatCompletionMessage, 0, len(repaired)+1)
	if system != "" {
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range repaired {
		switch m.Role {
		case models.RoleUser:
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: textOf(m.TextOrBlocks())})
		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: textOfBlocks(m.Content)}
			for _, b := range m.ToolCalls() {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   b.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.ToolCallName,
						Arguments: string(b.Arguments),
					},
				})
			}
			chatMsgs = append(chatMsgs, msg)
		case models.RoleToolResult:
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: m.ToolCallID,
				Content:    toolResultText(m),
			})
		}
	}

	req := openai.ChatCompletionRequest{Model: model, Messages: chatMsgs, Stream: true}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if len(tools) > 0 {
		req.Tools = convertOpenAITools(tools)
	}
	return openaiWireRequest{req: req}, nil
}

func (d *OpenAIDriver) Stream(ctx context.Context, req WireRequest, opts Options) *eventstream.Stream[AssistantEvent, *models.Message] {
	out := eventstream.New[AssistantEvent, *models.Message]()
	wire, ok := req.(openaiWireRequest)
	if !ok {
		out.End(nil, errors.New("openai: invalid wire request type"))
		return out
	}

	go func() {
		model := wire.req.Model
		if ctx.Err() != nil {
			d.emitAborted(out, model)
			return
		}
		partial := newPartial("openai", model)
		out.Push(AssistantEvent{Kind: EventStart, Partial: partial.Clone()})

		var stream *openai.ChatCompletionStream
		err := d.WithRetry(ctx, "openai.stream", func(ctx context.Context) error {
			s, err := d.client.CreateChatCompletionStream(ctx, wire.req)
			if err != nil {
				return &RetryableError{Err: err}
			}
			stream = s
			return nil
		})
		if err != nil {
			partial.StopReason = models.StopReasonError
			partial.ErrorMessage = err.Error()
			out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
			out.End(partial, err)
			return
		}
		defer stream.Close()
		d.processStream(ctx, stream, out, partial, model)
	}()

	return out
}

func (d *OpenAIDriver) emitAborted(out *eventstream.Stream[AssistantEvent, *models.Message], model string) {
	partial := newPartial("openai", model)
	partial.StopReason = models.StopReasonAborted
	partial.ErrorMessage = "aborted before stream open"
	out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
	out.End(partial, errors.New(partial.ErrorMessage))
}

func (d *OpenAIDriver) processStream(ctx context.Context, stream *openai.ChatCompletionStream, out *eventstream.Stream[AssistantEvent, *models.Message], partial *models.Message, model string) {
	textOpen := false
	textIdx := -1

	for {
		if ctx.Err() != nil {
			partial = stripTransient(partial)
			partial.StopReason = models.StopReasonAborted
			partial.ErrorMessage = "aborted mid-stream"
			out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
			out.End(partial, ctx.Err())
			return
		}

		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				d.finalizeToolCalls(partial, out)
				if textOpen {
					out.Push(AssistantEvent{Kind: EventTextEnd, BlockIndex: textIdx, Partial: partial.Clone()})
				}
				if partial.StopReason == "" {
					partial.StopReason = models.StopReasonStop
				}
				partial.Usage.Recompute("openai", model, nil)
				out.Push(AssistantEvent{Kind: EventDone, Partial: partial.Clone()})
				out.End(partial, nil)
				return
			}
			partial.StopReason = models.StopReasonError
			partial.ErrorMessage = err.Error()
			out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
			out.End(partial, err)
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			if !textOpen {
				textIdx = len(partial.Content)
				idx := textIdx
				partial.Content = append(partial.Content, models.ContentBlock{Type: models.BlockText, Index: &idx})
				out.Push(AssistantEvent{Kind: EventTextStart, BlockIndex: textIdx, Partial: partial.Clone()})
				textOpen = true
			}
			partial.Content[textIdx].Text += delta.Content
			out.Push(AssistantEvent{Kind: EventTextDelta, BlockIndex: textIdx, TextDelta: delta.Content, Partial: partial.Clone()})
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			d.applyToolCallDelta(partial, out, idx, tc)
		}

		if choice.FinishReason != "" {
			partial.StopReason = MapStopReason(string(choice.FinishReason))
		}
		if resp.Usage != nil {
			partial.Usage.Input = int64(resp.Usage.PromptTokens)
			partial.Usage.Output = int64(resp.Usage.CompletionTokens)
		}
	}
}

// toolCallIndexBase separates tool-call block indices from the single
// concurrent text block's index in the shared Content slice.
const toolCallIndexBase = 1 << 16

func (d *OpenAIDriver) applyToolCallDelta(partial *models.Message, out *eventstream.Stream[AssistantEvent, *models.Message], idx int, tc openai.ToolCall) {
	i := findBlockIndex(partial.Content, idx+toolCallIndexBase)
	if i == -1 {
		offset := idx + toolCallIndexBase
		partial.Content = append(partial.Content, models.ContentBlock{Type: models.BlockToolCall, Index: &offset})
		i = len(partial.Content) - 1
		out.Push(AssistantEvent{Kind: EventToolCallStart, BlockIndex: idx, Partial: partial.Clone()})
	}
	if tc.ID != "" {
		partial.Content[i].ToolCallID = tc.ID
	}
	if tc.Function.Name != "" {
		partial.Content[i].ToolCallName = tc.Function.Name
	}
	if tc.Function.Arguments != "" {
		partial.Content[i].PartialJSON += tc.Function.Arguments
		if parsed, err := streamjson.ParsePartial(partial.Content[i].PartialJSON); err == nil {
			partial.Content[i].Arguments = parsed
		}
		out.Push(AssistantEvent{Kind: EventToolCallDelta, BlockIndex: idx, JSONDelta: tc.Function.Arguments, Partial: partial.Clone()})
	}
}

func (d *OpenAIDriver) finalizeToolCalls(partial *models.Message, out *eventstream.Stream[AssistantEvent, *models.Message]) {
	for i := range partial.Content {
		if partial.Content[i].Type != models.BlockToolCall || partial.Content[i].Index == nil {
			continue
		}
		if parsed, err := streamjson.ParseStrict(partial.Content[i].PartialJSON); err == nil {
			partial.Content[i].Arguments = parsed
		} else {
			partial.Content[i].Arguments = json.RawMessage(`{}`)
		}
		partial.Content[i] = partial.Content[i].StripTransientFields()
		out.Push(AssistantEvent{Kind: EventToolCallEnd, Partial: partial.Clone()})
	}
}

func textOf(blocks []models.ContentBlock) string {
	var s string
	for _, b := range blocks {
		if b.Type == models.BlockText {
			s += b.Text
		}
	}
	return s
}

func textOfBlocks(blocks []models.ContentBlock) string {
	return textOf(blocks)
}

func toolResultText(m models.Message) string {
	var s string
	for _, item := range m.ResultContent {
		if item.Type == "text" {
			s += item.Text
		}
	}
	return s
}

func convertOpenAITools(tools []models.ToolDef) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		if len(t.Schema) > 0 {
			_ = json.Unmarshal(t.Schema, &params)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
