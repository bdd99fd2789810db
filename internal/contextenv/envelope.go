// Package contextenv implements the context envelope and declarative
// patch-op language (spec §4.5): the cached/uncached split a provider
// adapter serializes from, and the ordered set of operations that mutate
// it while tracking whether the change invalidates the provider's prompt
// cache.
package contextenv

import (
	"time"

	"github.com/streamloop/agentcore/pkg/models"
)

// SystemPart is one named, ordered section of the compiled system prompt.
type SystemPart struct {
	Name string
	Text string
}

// Options carries the per-call generation knobs an envelope threads down
// to the provider adapter.
type Options struct {
	Temperature *float64
	MaxTokens   *int
	Reasoning   string
}

// Envelope is the provider-agnostic request shape: a cached prefix (system
// parts, tools, cached messages, options) that providers are expected to
// prompt-cache, and an uncached tail appended every turn.
type Envelope struct {
	SystemParts []SystemPart
	Tools       []models.ToolDef
	Cached      []models.Message
	Uncached    []models.Message
	Options     Options

	// System is the compiled system prompt text, recomputed whenever the
	// parts list changes.
	System string
}

// Clone deep-copies an envelope so patch application never mutates the
// caller's copy in place.
func (e Envelope) Clone() Envelope {
	clone := e
	clone.SystemParts = append([]SystemPart(nil), e.SystemParts...)
	clone.Tools = append([]models.ToolDef(nil), e.Tools...)
	clone.Cached = cloneMessages(e.Cached)
	clone.Uncached = cloneMessages(e.Uncached)
	return clone
}

func cloneMessages(messages []models.Message) []models.Message {
	if messages == nil {
		return nil
	}
	out := make([]models.Message, len(messages))
	for i, m := range messages {
		out[i] = *m.Clone()
	}
	return out
}

// Messages concatenates the cached and uncached halves in send order.
func (e Envelope) Messages() []models.Message {
	out := make([]models.Message, 0, len(e.Cached)+len(e.Uncached))
	out = append(out, e.Cached...)
	out = append(out, e.Uncached...)
	return out
}

// recompileSystem joins the parts' text in order, separated by a blank
// line, matching the teacher's system-prompt assembly convention.
func recompileSystem(parts []SystemPart) string {
	var out string
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p.Text
	}
	return out
}

// Timestamp is a small alias used by ops that need deterministic replay.
type Timestamp = time.Time
