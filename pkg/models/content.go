// Package models defines the canonical message and content-block types
// shared by every provider adapter, the session tree, and the agent turn
// loop. Types here are wire-format agnostic: each provider adapter is
// responsible for translating to and from its own API shapes.
package models

import "encoding/json"

// BlockType discriminates ContentBlock variants.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockImage      BlockType = "image"
	BlockToolCall   BlockType = "tool_call"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is a closed tagged union of the content kinds an assistant
// or user message can carry. Only the fields relevant to Type are
// populated; callers should branch on Type and treat the rest as unset.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking          string `json:"thinking,omitempty"`
	ThinkingSignature string `json:"signature,omitempty"`

	// image
	ImageData     string `json:"data,omitempty"`
	ImageMimeType string `json:"mime_type,omitempty"`

	// tool_call
	ToolCallID   string          `json:"id,omitempty"`
	ToolCallName string          `json:"name,omitempty"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`

	// PartialJSON is the raw, possibly-truncated JSON fragment accumulated
	// while a tool_call block is still streaming. It is never persisted:
	// the adapter deletes it when the block closes (spec §4.2).
	PartialJSON string `json:"-"`

	// Index is the provider-native block index used to route deltas to
	// this block while streaming. Deleted on close so it never leaks into
	// persisted history (spec §4.3 Block indexing).
	Index *int `json:"-"`

	// tool_result
	ToolResultForID string             `json:"tool_call_id,omitempty"`
	ToolResultName  string             `json:"tool_name,omitempty"`
	ToolResultItems []ToolResultItem   `json:"content,omitempty"`
	IsError         bool               `json:"is_error,omitempty"`
}

// ToolResultItem is one piece of a tool result's content (text or image).
type ToolResultItem struct {
	Type      string `json:"type"` // "text" | "image"
	Text      string `json:"text,omitempty"`
	ImageData string `json:"data,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
}

// TextBlock constructs a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ThinkingBlock constructs a thinking content block.
func ThinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Thinking: thinking, ThinkingSignature: signature}
}

// ImageBlock constructs an image content block from base64 data.
func ImageBlock(data, mimeType string) ContentBlock {
	return ContentBlock{Type: BlockImage, ImageData: data, ImageMimeType: mimeType}
}

// Clone deep-copies a ContentBlock so callers can mutate a scratch copy
// without affecting persisted history.
func (b ContentBlock) Clone() ContentBlock {
	clone := b
	if b.Arguments != nil {
		clone.Arguments = append(json.RawMessage(nil), b.Arguments...)
	}
	if b.Index != nil {
		idx := *b.Index
		clone.Index = &idx
	}
	if b.ToolResultItems != nil {
		clone.ToolResultItems = append([]ToolResultItem(nil), b.ToolResultItems...)
	}
	return clone
}

// StripTransientFields deletes PartialJSON and Index, the fields that must
// never survive into a persisted message (spec §4.2, §4.3).
func (b ContentBlock) StripTransientFields() ContentBlock {
	b.PartialJSON = ""
	b.Index = nil
	return b
}
