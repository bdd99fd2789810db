package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/streamloop/agentcore/internal/eventstream"
	"github.com/streamloop/agentcore/internal/transcript"
	"github.com/streamloop/agentcore/pkg/models"
)

// OpenAIResponsesConfig configures an OpenAIResponsesDriver.
type OpenAIResponsesConfig struct {
	APIKey  string
	BaseURL string // defaults to https://api.openai.com/v1
	Log     *slog.Logger
}

// OpenAIResponsesDriver adapts OpenAI's Responses API. No published Go
// SDK in the retrieval pack covers this endpoint, so requests are built
// and the "response.*" SSE event stream is decoded directly over
// net/http, the way the pack's own HTTP-proxied provider calls do.
type OpenAIResponsesDriver struct {
	BaseDriver
	apiKey  string
	baseURL string
	http    *http.Client
}

type openaiResponsesWireRequest struct {
	body []byte
}

// NewOpenAIResponsesDriver constructs a driver bound to a single API key.
func NewOpenAIResponsesDriver(cfg OpenAIResponsesConfig) (*OpenAIResponsesDriver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai_responses: API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIResponsesDriver{
		BaseDriver: NewBaseDriver(cfg.Log),
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		http:       http.DefaultClient,
	}, nil
}

func (d *OpenAIResponsesDriver) Name() string { return "openai_responses" }

type responsesInputItem struct {
	Role    string                 `json:"role"`
	Content []responsesContentPart `json:"content"`
}

type responsesContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type responsesRequestBody struct {
	Model        string               `json:"model"`
	Instructions string               `json:"instructions,omitempty"`
	Input        []responsesInputItem `json:"input"`
	Stream       bool                 `json:"stream"`
	MaxTokens    *int                 `json:"max_output_tokens,omitempty"`
	Temperature  *float64             `json:"temperature,omitempty"`
}

func (d *OpenAIResponsesDriver) BuildRequest(model string, messages []models.Message, system string, tools []models.ToolDef, opts Options) (WireRequest, error) {
	repaired, _ := transcript.Repair(messages)
	repaired = transcript.MergeConsecutiveUserMessages(repaired)

	var input []responsesInputItem
	for _, m := range repaired {
		switch m.Role {
		case models.RoleUser:
			input = append(input, responsesInputItem{Role: "user", Content: []responsesContentPart{{Type: "input_text", Text: textOf(m.TextOrBlocks())}}})
		case models.RoleAssistant:
			input = append(input, responsesInputItem{Role: "assistant", Content: []responsesContentPart{{Type: "output_text", Text: textOf(m.Content)}}})
		case models.RoleToolResult:
			input = append(input, responsesInputItem{Role: "user", Content: []responsesContentPart{{Type: "input_text", Text: toolResultText(m)}}})
		}
	}

	body := responsesRequestBody{
		Model:        model,
		Instructions: system,
		Input:        input,
		Stream:       true,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai_responses: encode request: %w", err)
	}
	return openaiResponsesWireRequest{body: encoded}, nil
}

func (d *OpenAIResponsesDriver) Stream(ctx context.Context, req WireRequest, opts Options) *eventstream.Stream[AssistantEvent, *models.Message] {
	s := eventstream.New[AssistantEvent, *models.Message]()
	wire, ok := req.(openaiResponsesWireRequest)
	if !ok {
		s.End(nil, errors.New("openai_responses: invalid wire request type"))
		return s
	}

	partial := newPartial("openai_responses", "")
	go func() {
		resp, err := d.openStream(ctx, wire)
		if err != nil {
			d.emitAborted(ctx, s, partial, err)
			return
		}
		defer resp.Body.Close()
		d.processStream(ctx, resp.Body, s, partial)
	}()
	return s
}

func (d *OpenAIResponsesDriver) openStream(ctx context.Context, wire openaiResponsesWireRequest) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/responses", bytes.NewReader(wire.body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := d.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("openai_responses: upstream returned %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (d *OpenAIResponsesDriver) emitAborted(ctx context.Context, s *eventstream.Stream[AssistantEvent, *models.Message], partial *models.Message, err error) {
	if ctx.Err() != nil {
		partial.StopReason = models.StopReasonAborted
	} else {
		partial.StopReason = models.StopReasonError
		partial.ErrorMessage = err.Error()
	}
	partial = stripTransient(partial)
	s.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
	s.End(partial, &StreamError{Provider: d.Name(), Cancelled: ctx.Err() != nil, Err: err})
}

// responsesEvent is the subset of the Responses API's SSE event payload
// shapes this driver understands.
type responsesEvent struct {
	Type     string `json:"type"`
	Delta    string `json:"delta,omitempty"`
	Response struct {
		Status string `json:"status,omitempty"`
	} `json:"response,omitempty"`
}

func (d *OpenAIResponsesDriver) processStream(ctx context.Context, body io.Reader, s *eventstream.Stream[AssistantEvent, *models.Message], partial *models.Message) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var textOpen bool

	for scanner.Scan() {
		if ctx.Err() != nil {
			d.emitAborted(ctx, s, partial, ctx.Err())
			return
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var ev responsesEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue // malformed SSE frame, not data loss: skip it
		}

		switch ev.Type {
		case "response.created":
			s.Push(AssistantEvent{Kind: EventStart, Partial: partial.Clone()})

		case "response.output_text.delta":
			if !textOpen {
				partial.Content = append(partial.Content, models.TextBlock(""))
				s.Push(AssistantEvent{Kind: EventTextStart, Partial: partial.Clone()})
				textOpen = true
			}
			idx := len(partial.Content) - 1
			partial.Content[idx].Text += ev.Delta
			s.Push(AssistantEvent{Kind: EventTextDelta, TextDelta: ev.Delta, Partial: partial.Clone()})

		case "response.output_text.done":
			if textOpen {
				s.Push(AssistantEvent{Kind: EventTextEnd, Partial: partial.Clone()})
				textOpen = false
			}

		case "response.completed":
			partial.StopReason = mapResponsesStopReason(ev.Response.Status)
			partial = stripTransient(partial)
			s.Push(AssistantEvent{Kind: EventDone, Partial: partial.Clone()})
			s.End(partial, nil)
			return

		case "response.failed", "error":
			partial.StopReason = models.StopReasonError
			partial.ErrorMessage = payload
			partial = stripTransient(partial)
			s.Push(AssistantEvent{Kind: EventError, Partial: partial.Clone()})
			s.End(partial, &StreamError{Provider: d.Name(), Err: errors.New(payload)})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		d.emitAborted(ctx, s, partial, err)
		return
	}

	// Stream ended without a terminal response.completed/failed event.
	partial.StopReason = models.StopReasonStop
	partial = stripTransient(partial)
	s.Push(AssistantEvent{Kind: EventDone, Partial: partial.Clone()})
	s.End(partial, nil)
}

func mapResponsesStopReason(status string) models.StopReason {
	switch status {
	case "completed":
		return models.StopReasonStop
	case "incomplete":
		return models.StopReasonLength
	case "failed":
		return models.StopReasonError
	default:
		return models.StopReasonStop
	}
}
