package models

import "time"

// Role discriminates the Message tagged union.
type Role string

const (
	RoleUser          Role = "user"
	RoleAssistant     Role = "assistant"
	RoleToolResult    Role = "tool_result"
	RoleBashExecution Role = "bash_execution"
)

// StopReason is the canonical, provider-independent reason an assistant
// turn ended (spec §3 DATA MODEL).
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonToolUse StopReason = "toolUse"
	StopReasonError   StopReason = "error"
	StopReasonAborted StopReason = "aborted"
)

// Attachment is a user-supplied file or image reference attached to a
// prompt before it is turned into content blocks.
type Attachment struct {
	Type          string `json:"type"` // image, document
	URL           string `json:"url,omitempty"`
	Data          string `json:"data,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	Filename      string `json:"filename,omitempty"`
	ExtractedText string `json:"extracted_text,omitempty"`
}

// Message is the canonical, tagged-by-role conversation unit. Only the
// fields relevant to Role are populated.
type Message struct {
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// user
	UserText        string         `json:"text,omitempty"`
	UserContent     []ContentBlock `json:"content,omitempty"`
	UserAttachments []Attachment   `json:"attachments,omitempty"`

	// assistant
	Content      []ContentBlock `json:"assistant_content,omitempty"`
	API          string         `json:"api,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	Model        string         `json:"model,omitempty"`
	Usage        Usage          `json:"usage,omitempty"`
	StopReason   StopReason     `json:"stop_reason,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`

	// tool_result
	ToolCallID    string           `json:"tool_call_id,omitempty"`
	ToolName      string           `json:"tool_name,omitempty"`
	ResultContent []ToolResultItem `json:"result_content,omitempty"`
	ResultIsError bool             `json:"result_is_error,omitempty"`

	// bash_execution (app-level custom message)
	Command  string `json:"command,omitempty"`
	Output   string `json:"output,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

// NewUserMessage builds a user message from plain text.
func NewUserMessage(text string, ts time.Time) *Message {
	return &Message{Role: RoleUser, UserText: text, Timestamp: ts}
}

// NewUserMessageFromBlocks builds a user message from content blocks,
// e.g. when attachments were expanded into document blocks.
func NewUserMessageFromBlocks(blocks []ContentBlock, attachments []Attachment, ts time.Time) *Message {
	return &Message{Role: RoleUser, UserContent: blocks, UserAttachments: attachments, Timestamp: ts}
}

// TextOrBlocks returns the user message's content as content blocks,
// synthesizing a single text block when only UserText is set.
func (m *Message) TextOrBlocks() []ContentBlock {
	if m.Role != RoleUser {
		return nil
	}
	if len(m.UserContent) > 0 {
		return m.UserContent
	}
	if m.UserText != "" {
		return []ContentBlock{TextBlock(m.UserText)}
	}
	return nil
}

// ToolCalls returns the tool_call blocks of an assistant message, in order.
func (m *Message) ToolCalls() []ContentBlock {
	if m.Role != RoleAssistant {
		return nil
	}
	var calls []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolCall {
			calls = append(calls, b)
		}
	}
	return calls
}

// IsErroredOrAborted reports whether an assistant message ended with a
// stop reason that requires transcript repair to drop it (spec §4.4).
func (m *Message) IsErroredOrAborted() bool {
	return m.Role == RoleAssistant && (m.StopReason == StopReasonError || m.StopReason == StopReasonAborted)
}

// Clone deep-copies a Message, including its content blocks.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Content = cloneBlocks(m.Content)
	clone.UserContent = cloneBlocks(m.UserContent)
	clone.UserAttachments = append([]Attachment(nil), m.UserAttachments...)
	clone.ResultContent = append([]ToolResultItem(nil), m.ResultContent...)
	return &clone
}

func cloneBlocks(blocks []ContentBlock) []ContentBlock {
	if blocks == nil {
		return nil
	}
	out := make([]ContentBlock, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}
