// Package providers implements one streaming driver per upstream LLM API
// (spec §4.3). Every driver converts a canonical context into a
// provider-specific wire request, decodes the provider's native streaming
// protocol, and emits a normalized event taxonomy while mutating a single
// growing assistant message in place.
package providers

import (
	"context"
	"time"

	"github.com/streamloop/agentcore/internal/eventstream"
	"github.com/streamloop/agentcore/pkg/models"
)

// EventKind enumerates the normalized event taxonomy every driver emits.
type EventKind string

const (
	EventStart         EventKind = "start"
	EventTextStart     EventKind = "text_start"
	EventTextDelta     EventKind = "text_delta"
	EventTextEnd       EventKind = "text_end"
	EventThinkingStart EventKind = "thinking_start"
	EventThinkingDelta EventKind = "thinking_delta"
	EventThinkingEnd   EventKind = "thinking_end"
	EventToolCallStart EventKind = "toolcall_start"
	EventToolCallDelta EventKind = "toolcall_delta"
	EventToolCallEnd   EventKind = "toolcall_end"
	EventDone          EventKind = "done"
	EventError         EventKind = "error"
)

// AssistantEvent carries the evolving partial assistant message alongside
// the kind of lifecycle step that just happened and, for delta events,
// the incremental payload.
type AssistantEvent struct {
	Kind EventKind

	// BlockIndex is the provider-native index of the block this event
	// concerns, for block lifecycle events.
	BlockIndex int

	TextDelta      string
	ThinkingDelta  string
	SignatureDelta string
	JSONDelta      string

	// Partial is the assistant message as it stands after this event is
	// applied. Never share this pointer across goroutines uncloned.
	Partial *models.Message
}

// Options carries per-call knobs threaded from the agent turn loop down
// into a driver.
type Options struct {
	Temperature   *float64
	MaxTokens     *int
	ThinkingLevel string
	ToolChoice    *models.ToolChoice
	Prices        *models.PriceTable
}

// WireRequest is the opaque, provider-shaped payload buildRequest
// produces. Drivers type-assert their own concrete type internally;
// callers only pass it back into Stream.
type WireRequest any

// Driver is the interface every provider adapter implements.
type Driver interface {
	// Name identifies the provider for transcript repair normalizations,
	// price table lookups, and logging.
	Name() string

	// BuildRequest applies transcript repair and per-provider
	// normalizations, then converts canonical messages into the
	// provider's wire shape.
	BuildRequest(model string, messages []models.Message, system string, tools []models.ToolDef, opts Options) (WireRequest, error)

	// Stream opens the upstream connection and emits normalized events
	// until a terminal done/error event, at which point the returned
	// stream's Result resolves to the finished assistant message.
	Stream(ctx context.Context, req WireRequest, opts Options) *eventstream.Stream[AssistantEvent, *models.Message]
}

// MapStopReason maps a provider-native stop reason string to the
// canonical StopReason (spec §4.3 stop-reason table).
func MapStopReason(native string) models.StopReason {
	switch native {
	case "end_turn", "stop", "stop_sequence":
		return models.StopReasonStop
	case "max_tokens", "length":
		return models.StopReasonLength
	case "tool_use", "tool_calls", "function_call":
		return models.StopReasonToolUse
	case "refusal", "content_filter":
		return models.StopReasonError
	default:
		return models.StopReasonStop
	}
}

// newPartial constructs the empty assistant-message header a stream
// starts with.
func newPartial(provider, model string) *models.Message {
	return &models.Message{
		Role:      models.RoleAssistant,
		API:       provider,
		Provider:  provider,
		Model:     model,
		Content:   nil,
		Timestamp: time.Now(),
	}
}

// findBlockIndex locates the scratch content block carrying the given
// provider-native index, per spec §4.3's index-based lookup convention.
func findBlockIndex(content []models.ContentBlock, idx int) int {
	for i := range content {
		if content[i].Index != nil && *content[i].Index == idx {
			return i
		}
	}
	return -1
}

func intPtr(v int) *int { return &v }
