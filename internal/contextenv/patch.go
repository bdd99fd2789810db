package contextenv

import (
	"fmt"
	"strings"
	"time"

	"github.com/streamloop/agentcore/pkg/models"
)

// OpKind discriminates the patch-op tagged union (spec §4.5).
type OpKind string

const (
	OpSystemPartSet          OpKind = "system_part_set"
	OpSystemPartRemove       OpKind = "system_part_remove"
	OpSystemPartsReplace     OpKind = "system_parts_replace"
	OpToolsReplace           OpKind = "tools_replace"
	OpToolsRemove            OpKind = "tools_remove"
	OpMessagesCachedReplace  OpKind = "messages_cached_replace"
	OpMessagesUncachedAppend OpKind = "messages_uncached_append"
	OpOptionsSet             OpKind = "options_set"
	OpCompactionApply        OpKind = "compaction_apply"
)

// cachedScopeOps lists every op kind whose scope is "cached" and therefore
// requires a non-empty InvalidateCacheReason.
var cachedScopeOps = map[OpKind]bool{
	OpSystemPartSet:         true,
	OpSystemPartRemove:      true,
	OpSystemPartsReplace:    true,
	OpToolsReplace:          true,
	OpToolsRemove:           true,
	OpMessagesCachedReplace: true,
	OpOptionsSet:            true,
	OpCompactionApply:       true,
}

// Op is one entry in a patch, holding only the fields relevant to Kind.
type Op struct {
	Kind OpKind

	InvalidateCacheReason string

	// system_part_set / system_part_remove
	PartName string
	PartText string

	// system_parts_replace
	Parts []SystemPart

	// tools_replace
	Tools []models.ToolDef

	// tools_remove
	ToolNames []string

	// messages_cached_replace
	CachedMessages []models.Message

	// messages_uncached_append
	AppendMessages []models.Message

	// options_set
	Temperature *float64
	MaxTokens   *int
	Reasoning   *string

	// compaction_apply
	Summary               string
	FirstKeptMessageIndex int
	Timestamp             time.Time
}

// MissingReasonError reports a cached-scope op with no invalidation
// reason attached.
type MissingReasonError struct {
	Kind OpKind
}

func (e *MissingReasonError) Error() string {
	return fmt.Sprintf("contextenv: op %q requires a non-empty invalidateCacheReason", e.Kind)
}

func (e *MissingReasonError) ErrorKind() string { return "missing-reason" }

// SummaryFormatter turns a compaction summary string into the Message that
// replaces the compacted prefix. The default wraps it as a single user
// text block.
type SummaryFormatter func(summary string, ts time.Time) models.Message

// DefaultSummaryFormatter is used when Apply is not given a custom one.
func DefaultSummaryFormatter(summary string, ts time.Time) models.Message {
	return models.Message{Role: models.RoleUser, UserText: summary, Timestamp: ts}
}

// Result is what Apply returns alongside the patched envelope.
type Result struct {
	CacheInvalidated bool
	Reasons          []string // deduplicated, in first-seen order
}

// Apply applies ops sequentially to envelope, returning the resulting
// envelope (a fresh copy; the input is never mutated) and whether the
// cache was invalidated along the way. A cached-scope op with an empty
// InvalidateCacheReason fails the whole patch with a *MissingReasonError.
func Apply(envelope Envelope, ops []Op, formatSummary SummaryFormatter) (Envelope, Result, error) {
	if formatSummary == nil {
		formatSummary = DefaultSummaryFormatter
	}

	env := envelope.Clone()
	var result Result
	seen := make(map[string]bool)

	addReason := func(reason string) {
		reason = strings.TrimSpace(reason)
		if reason == "" || seen[reason] {
			return
		}
		seen[reason] = true
		result.Reasons = append(result.Reasons, reason)
		result.CacheInvalidated = true
	}

	for _, op := range ops {
		if cachedScopeOps[op.Kind] && strings.TrimSpace(op.InvalidateCacheReason) == "" {
			return Envelope{}, Result{}, &MissingReasonError{Kind: op.Kind}
		}

		switch op.Kind {
		case OpSystemPartSet:
			env.SystemParts = upsertPart(env.SystemParts, SystemPart{Name: op.PartName, Text: op.PartText})
			env.System = recompileSystem(env.SystemParts)
			addReason(op.InvalidateCacheReason)

		case OpSystemPartRemove:
			env.SystemParts = removePart(env.SystemParts, op.PartName)
			env.System = recompileSystem(env.SystemParts)
			addReason(op.InvalidateCacheReason)

		case OpSystemPartsReplace:
			env.SystemParts = append([]SystemPart(nil), op.Parts...)
			env.System = recompileSystem(env.SystemParts)
			addReason(op.InvalidateCacheReason)

		case OpToolsReplace:
			env.Tools = append([]models.ToolDef(nil), op.Tools...)
			addReason(op.InvalidateCacheReason)

		case OpToolsRemove:
			env.Tools = removeTools(env.Tools, op.ToolNames)
			addReason(op.InvalidateCacheReason)

		case OpMessagesCachedReplace:
			env.Cached = cloneMessages(op.CachedMessages)
			addReason(op.InvalidateCacheReason)

		case OpMessagesUncachedAppend:
			env.Uncached = append(env.Uncached, cloneMessages(op.AppendMessages)...)
			// Uncached appends never invalidate the cache.

		case OpOptionsSet:
			if op.Temperature != nil {
				env.Options.Temperature = op.Temperature
			}
			if op.MaxTokens != nil {
				env.Options.MaxTokens = op.MaxTokens
			}
			if op.Reasoning != nil {
				env.Options.Reasoning = *op.Reasoning
			}
			addReason(op.InvalidateCacheReason)

		case OpCompactionApply:
			if op.FirstKeptMessageIndex < 0 || op.FirstKeptMessageIndex > len(env.Cached) {
				return Envelope{}, Result{}, fmt.Errorf("contextenv: compaction_apply firstKeptMessageIndex %d out of range [0,%d]", op.FirstKeptMessageIndex, len(env.Cached))
			}
			summaryMsg := formatSummary(op.Summary, op.Timestamp)
			kept := append([]models.Message(nil), env.Cached[op.FirstKeptMessageIndex:]...)
			env.Cached = append([]models.Message{summaryMsg}, kept...)
			addReason(op.InvalidateCacheReason)

		default:
			return Envelope{}, Result{}, fmt.Errorf("contextenv: unknown op kind %q", op.Kind)
		}
	}

	return env, result, nil
}

func upsertPart(parts []SystemPart, part SystemPart) []SystemPart {
	for i, p := range parts {
		if p.Name == part.Name {
			out := append([]SystemPart(nil), parts...)
			out[i] = part
			return out
		}
	}
	return append(append([]SystemPart(nil), parts...), part)
}

func removePart(parts []SystemPart, name string) []SystemPart {
	out := make([]SystemPart, 0, len(parts))
	for _, p := range parts {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return out
}

func removeTools(tools []models.ToolDef, names []string) []models.ToolDef {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := make([]models.ToolDef, 0, len(tools))
	for _, t := range tools {
		if !drop[t.Name] {
			out = append(out, t)
		}
	}
	return out
}
