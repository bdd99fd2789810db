package providers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/streamloop/agentcore/internal/eventstream"
	"github.com/streamloop/agentcore/internal/streamjson"
	"github.com/streamloop/agentcore/internal/transcript"
	"github.com/streamloop/agentcore/pkg/models"
)

// BedrockConfig configures a BedrockDriver.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Log             *slog.Logger
}

// BedrockDriver adapts AWS Bedrock's InvokeModelWithResponseStream API,
// which delivers converse-style events as newline-delimited JSON text
// packed inside binary event-stream chunks (spec §4.3 Bedrock framing
// detail).
type BedrockDriver struct {
	BaseDriver
	client *bedrockruntime.Client
}

type bedrockWireRequest struct {
	modelID string
	body    []byte
}

type bedrockChatBody struct {
	Messages []bedrockMessage `json:"messages"`
	System   []bedrockText    `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type bedrockText struct {
	Text string `json:"text"`
}

type bedrockMessage struct {
	Role    string        `json:"role"`
	Content []bedrockText `json:"content"`
}

// NewBedrockDriver constructs a driver using the given region and
// optional explicit credentials; an empty AccessKeyID falls back to the
// default AWS credential chain.
func NewBedrockDriver(ctx context.Context, cfg BedrockConfig) (*BedrockDriver, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, err
	}
	return &BedrockDriver{
		BaseDriver: NewBaseDriver(cfg.Log),
		client:     bedrockruntime.NewFromConfig(awsCfg),
	}, nil
}

func (d *BedrockDriver) Name() string { return "bedrock" }

func (d *BedrockDriver) BuildRequest(model string, messages []models.Message, system string, tools []models.ToolDef, opts Options) (WireRequest, error) {
	repaired, _ := transcript.Repair(messages)
	repaired = transcript.DemoteUnsignedThinking(repaired)
	repaired = transcript.MergeConsecutiveUserMessages(repaired)

	body := bedrockChatBody{MaxTokens: 4096}
	if opts.MaxTokens != nil {
		body.MaxTokens = *opts.MaxTokens
	}
	if system != "" {
		body.System = []bedrockText{{Text: system}}
	}
	for _, m := range repaired {
		switch m.Role {
		case models.RoleUser:
			body.Messages = append(body.Messages, bedrockMessage{Role: "user", Content: []bedrockText{{Text: textOf(m.TextOrBlocks())}}})
		case models.RoleAssistant:
			body.Messages = append(body.Messages, bedrockMessage{Role: "assistant", Content: []bedrockText{{Text: textOfBlocks(m.Content)}}})
		case models.RoleToolResult:
			body.Messages = append(body.Messages, bedrockMessage{Role: "user", Content: []bedrockText{{Text: toolResultText(m)}}})
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bedrockWireRequest{modelID: model, body: raw}, nil
}

func (d *BedrockDriver) Stream(ctx context.Context, req WireRequest, opts Options) *eventstream.Stream[AssistantEvent, *models.Message] {
	out := eventstream.New[AssistantEvent, *models.Message]()
	wire, ok := req.(bedrockWireRequest)
	if !ok {
		out.End(nil, errors.New("bedrock: invalid wire request type"))
		return out
	}

	go func() {
		if ctx.Err() != nil {
			d.emitAborted(out, wire.modelID)
			return
		}
		partial := newPartial("bedrock", wire.modelID)
		out.Push(AssistantEvent{Kind: EventStart, Partial: partial.Clone()})

		resp, err := d.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(wire.modelID),
			ContentType: aws.String("application/json"),
			Body:        wire.body,
		})
		if err != nil {
			partial.StopReason = models.StopReasonError
			partial.ErrorMessage = err.Error()
			out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
			out.End(partial, err)
			return
		}
		d.processStream(ctx, resp, out, partial, wire.modelID)
	}()

	return out
}

func (d *BedrockDriver) emitAborted(out *eventstream.Stream[AssistantEvent, *models.Message], model string) {
	partial := newPartial("bedrock", model)
	partial.StopReason = models.StopReasonAborted
	partial.ErrorMessage = "aborted before stream open"
	out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
	out.End(partial, errors.New(partial.ErrorMessage))
}

func (d *BedrockDriver) processStream(ctx context.Context, resp *bedrockruntime.InvokeModelWithResponseStreamOutput, out *eventstream.Stream[AssistantEvent, *models.Message], partial *models.Message, model string) {
	reader := &bedrockLineReader{}
	stream := resp.GetStream()
	defer stream.Close()

	textIdx := -1

	for event := range stream.Events() {
		if ctx.Err() != nil {
			partial = stripTransient(partial)
			partial.StopReason = models.StopReasonAborted
			partial.ErrorMessage = "aborted mid-stream"
			out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
			out.End(partial, ctx.Err())
			return
		}

		chunkBytes := extractBedrockChunkBytes(event)
		if chunkBytes == nil {
			continue
		}

		for _, line := range reader.Feed(chunkBytes) {
			ev, ok := decodeBedrockLine(line)
			if !ok {
				d.Log.Debug("bedrock: dropped unparseable framing line", "bytes", len(line))
				continue
			}
			d.applyBedrockEvent(ev, partial, out, &textIdx)
		}

		if err := stream.Err(); err != nil {
			partial.StopReason = models.StopReasonError
			partial.ErrorMessage = err.Error()
			out.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
			out.End(partial, err)
			return
		}
	}

	if partial.StopReason == "" {
		partial.StopReason = models.StopReasonStop
	}
	partial.Usage.Recompute("bedrock", model, nil)
	out.Push(AssistantEvent{Kind: EventDone, Partial: partial.Clone()})
	out.End(partial, nil)
}

func (d *BedrockDriver) applyBedrockEvent(ev bedrockEvent, partial *models.Message, out *eventstream.Stream[AssistantEvent, *models.Message], textIdx *int) {
	switch ev.Type {
	case "contentBlockStart":
		idx := len(partial.Content)
		switch ev.BlockType {
		case "tool_use":
			partial.Content = append(partial.Content, models.ContentBlock{Type: models.BlockToolCall, Index: &idx, ToolCallID: ev.ToolUseID, ToolCallName: ev.ToolUseName})
			out.Push(AssistantEvent{Kind: EventToolCallStart, BlockIndex: idx, Partial: partial.Clone()})
		case "thinking":
			partial.Content = append(partial.Content, models.ContentBlock{Type: models.BlockThinking, Index: &idx})
			out.Push(AssistantEvent{Kind: EventThinkingStart, BlockIndex: idx, Partial: partial.Clone()})
		default:
			partial.Content = append(partial.Content, models.ContentBlock{Type: models.BlockText, Index: &idx})
			*textIdx = idx
			out.Push(AssistantEvent{Kind: EventTextStart, BlockIndex: idx, Partial: partial.Clone()})
		}

	case "contentBlockDelta":
		if ev.Index == nil {
			return
		}
		i := findBlockIndex(partial.Content, *ev.Index)
		if i < 0 {
			return
		}
		switch partial.Content[i].Type {
		case models.BlockText:
			partial.Content[i].Text += ev.Text
			out.Push(AssistantEvent{Kind: EventTextDelta, BlockIndex: *ev.Index, TextDelta: ev.Text, Partial: partial.Clone()})
		case models.BlockThinking:
			partial.Content[i].Thinking += ev.Thinking
			partial.Content[i].ThinkingSignature += ev.Signature
			out.Push(AssistantEvent{Kind: EventThinkingDelta, BlockIndex: *ev.Index, ThinkingDelta: ev.Thinking, Partial: partial.Clone()})
		case models.BlockToolCall:
			partial.Content[i].PartialJSON += ev.PartialJSON
			if parsed, err := streamjson.ParsePartial(partial.Content[i].PartialJSON); err == nil {
				partial.Content[i].Arguments = parsed
			}
			out.Push(AssistantEvent{Kind: EventToolCallDelta, BlockIndex: *ev.Index, JSONDelta: ev.PartialJSON, Partial: partial.Clone()})
		}

	case "contentBlockStop":
		if ev.Index == nil {
			return
		}
		i := findBlockIndex(partial.Content, *ev.Index)
		if i < 0 {
			return
		}
		switch partial.Content[i].Type {
		case models.BlockToolCall:
			if parsed, err := streamjson.ParseStrict(partial.Content[i].PartialJSON); err == nil {
				partial.Content[i].Arguments = parsed
			} else {
				partial.Content[i].Arguments = json.RawMessage(`{}`)
			}
			partial.Content[i] = partial.Content[i].StripTransientFields()
			out.Push(AssistantEvent{Kind: EventToolCallEnd, BlockIndex: *ev.Index, Partial: partial.Clone()})
		case models.BlockThinking:
			out.Push(AssistantEvent{Kind: EventThinkingEnd, BlockIndex: *ev.Index, Partial: partial.Clone()})
		case models.BlockText:
			out.Push(AssistantEvent{Kind: EventTextEnd, BlockIndex: *ev.Index, Partial: partial.Clone()})
		}
		partial.Content[i].Index = nil

	case "messageStop":
		if ev.StopReason != "" {
			partial.StopReason = MapStopReason(ev.StopReason)
		}

	case "metadata":
		if ev.Usage != nil {
			partial.Usage.Input = ev.Usage.InputTokens
			partial.Usage.Output = ev.Usage.OutputTokens
		}
	}
}

// extractBedrockChunkBytes pulls the raw payload out of whichever union
// member the AWS SDK populated for this event; unrecognized member types
// yield nil and are skipped upstream.
func extractBedrockChunkBytes(event bedrockruntime.ResponseStream) []byte {
	member, ok := event.(interface{ GetBytes() []byte })
	if !ok {
		return nil
	}
	return member.GetBytes()
}
