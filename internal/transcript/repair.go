// Package transcript implements the deterministic, idempotent transcript
// repair every provider adapter runs before serializing a request (spec
// §4.4): dropping errored/aborted assistant turns and the tool results
// left orphaned by their removal.
package transcript

import "github.com/streamloop/agentcore/pkg/models"

// Report describes what Repair changed, for logging and tests.
type Report struct {
	DroppedAssistant int
	DroppedToolCalls []string
	DroppedOrphans   int
}

// Repair drops every assistant message with stopReason ∈ {error, aborted}
// together with any tool_result referencing one of its tool-call ids, then
// drops remaining tool_results whose toolCallId does not match any
// preceding non-errored assistant tool-call (orphans). The result
// preserves relative order and is safe to run repeatedly.
func Repair(messages []models.Message) ([]models.Message, Report) {
	var report Report

	droppedCallIDs := make(map[string]bool)
	for _, m := range messages {
		if m.IsErroredOrAborted() {
			report.DroppedAssistant++
			for _, b := range m.ToolCalls() {
				droppedCallIDs[b.ToolCallID] = true
				report.DroppedToolCalls = append(report.DroppedToolCalls, b.ToolCallID)
			}
		}
	}

	var afterDrop []models.Message
	for _, m := range messages {
		if m.IsErroredOrAborted() {
			continue
		}
		if m.Role == models.RoleToolResult && droppedCallIDs[m.ToolCallID] {
			continue
		}
		afterDrop = append(afterDrop, m)
	}

	knownToolCalls := make(map[string]bool)
	var out []models.Message
	for _, m := range afterDrop {
		if m.Role == models.RoleAssistant {
			for _, b := range m.ToolCalls() {
				knownToolCalls[b.ToolCallID] = true
			}
			out = append(out, m)
			continue
		}
		if m.Role == models.RoleToolResult {
			if !knownToolCalls[m.ToolCallID] {
				report.DroppedOrphans++
				continue
			}
			out = append(out, m)
			continue
		}
		out = append(out, m)
	}

	return out, report
}

// MergeConsecutiveUserMessages merges adjacent user-role messages into one,
// concatenating their content blocks in order. Some providers (Anthropic
// in particular) require strict role alternation.
func MergeConsecutiveUserMessages(messages []models.Message) []models.Message {
	var out []models.Message
	for _, m := range messages {
		if m.Role == models.RoleUser && len(out) > 0 && out[len(out)-1].Role == models.RoleUser {
			prev := &out[len(out)-1]
			prev.UserContent = append(prev.TextOrBlocks(), m.TextOrBlocks()...)
			prev.UserText = ""
			continue
		}
		out = append(out, m)
	}
	return out
}

// DropImagesOnTextOnlyModel removes image blocks from user messages when
// the target model cannot accept them, dropping the whole message if
// nothing but empty text remains.
func DropImagesOnTextOnlyModel(messages []models.Message, textOnly bool) []models.Message {
	if !textOnly {
		return messages
	}
	var out []models.Message
	for _, m := range messages {
		if m.Role != models.RoleUser {
			out = append(out, m)
			continue
		}
		blocks := m.TextOrBlocks()
		var kept []models.ContentBlock
		for _, b := range blocks {
			if b.Type != models.BlockImage {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			continue
		}
		m.UserContent = kept
		m.UserText = ""
		out = append(out, m)
	}
	return out
}

// DemoteUnsignedThinking turns thinking blocks with no signature into text
// blocks, since the signature is what the provider uses to verify
// reasoning provenance and an unsigned block cannot be replayed.
func DemoteUnsignedThinking(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	copy(out, messages)
	for i := range out {
		if out[i].Role != models.RoleAssistant {
			continue
		}
		content := make([]models.ContentBlock, len(out[i].Content))
		copy(content, out[i].Content)
		for j, b := range content {
			if b.Type == models.BlockThinking && b.ThinkingSignature == "" {
				content[j] = models.TextBlock(b.Thinking)
			}
		}
		out[i].Content = content
	}
	return out
}
