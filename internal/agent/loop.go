// Package agent implements the turn loop described in spec §4.7: message
// queueing, model invocation through a provider driver, sequential tool
// dispatch, lifecycle events, and cancellation.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/streamloop/agentcore/internal/contextenv"
	"github.com/streamloop/agentcore/internal/providers"
	"github.com/streamloop/agentcore/internal/sessiontree"
	"github.com/streamloop/agentcore/pkg/models"
)

// AttachmentTransformer turns attachments lacking extracted text into
// document content blocks. It is supplied externally because extraction
// (OCR, PDF parsing, etc.) is outside the agent's concern.
type AttachmentTransformer func(attachments []models.Attachment) []models.ContentBlock

// Config constructs an Agent.
type Config struct {
	Model             string
	SystemPrompt      string
	ThinkingLevel     string
	CWD               string
	SystemFingerprint string
	SessionName       string

	Driver providers.Driver
	Tree   *sessiontree.Tree
	Tools  *Registry
	Prices *models.PriceTable

	// ToolSchemas, keyed by tool name, are checked against a tool_call's
	// arguments before dispatch (spec §4.2's strict-parse requirement,
	// extended to full schema conformance). A tool with no entry here is
	// dispatched unvalidated.
	ToolSchemas map[string]json.RawMessage

	AttachmentTransformer   AttachmentTransformer
	FormatCompactionSummary contextenv.SummaryFormatter

	Log *slog.Logger
}

// Agent holds the turn-loop state described in spec §4.7.
type Agent struct {
	mu sync.Mutex

	model             string
	systemPrompt      string
	thinkingLevel     string
	cwd               string
	systemFingerprint string
	sessionName       string

	queue       messageQueue
	isStreaming bool
	aborted     bool
	lastErr     error
	cancelFn    context.CancelFunc

	toolDefs []models.ToolDef

	tree        *sessiontree.Tree
	driver      providers.Driver
	tools       *Registry
	prices      *models.PriceTable
	toolSchemas map[string]json.RawMessage

	attachmentTransformer AttachmentTransformer
	formatSummary         contextenv.SummaryFormatter

	observers []Observer
	log       *slog.Logger
}

// New constructs an Agent from cfg.
func New(cfg Config) *Agent {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Agent{
		model:                 cfg.Model,
		systemPrompt:          cfg.SystemPrompt,
		thinkingLevel:         cfg.ThinkingLevel,
		cwd:                   cfg.CWD,
		systemFingerprint:     cfg.SystemFingerprint,
		sessionName:           cfg.SessionName,
		tree:                  cfg.Tree,
		driver:                cfg.Driver,
		tools:                 cfg.Tools,
		prices:                cfg.Prices,
		toolSchemas:           cfg.ToolSchemas,
		attachmentTransformer: cfg.AttachmentTransformer,
		formatSummary:         cfg.FormatCompactionSummary,
		log:                   log,
	}
}

// Subscribe registers an observer for every lifecycle event.
func (a *Agent) Subscribe(obs Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, obs)
}

// SetToolDefs replaces the tool definitions sent to the provider.
func (a *Agent) SetToolDefs(defs []models.ToolDef) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toolDefs = defs
}

// SetSystemPrompt replaces the system prompt text used for every turn
// after this call. Callers that assemble it from a context envelope (a
// skills reload, for instance) pass the envelope's recompiled System
// field.
func (a *Agent) SetSystemPrompt(prompt string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.systemPrompt = prompt
}

// QueueMessage appends m to the pending queue without touching the
// provider.
func (a *Agent) QueueMessage(m models.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue.enqueue(m)
}

// UpdateQueuedUserMessageByTimestamp edits the first queued user message
// matching ts in place.
func (a *Agent) UpdateQueuedUserMessageByTimestamp(ts time.Time, newText string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue.updateByTimestamp(ts.UnixNano(), newText)
}

// RemoveQueuedUserMessageByTimestamp removes the first queued user
// message matching ts.
func (a *Agent) RemoveQueuedUserMessageByTimestamp(ts time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue.removeByTimestamp(ts.UnixNano())
}

// ClearMessageQueue empties the pending queue.
func (a *Agent) ClearMessageQueue() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue.clear()
}

// IsStreaming reports whether a turn is currently in flight.
func (a *Agent) IsStreaming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isStreaming
}

// Abort signals the current stream's context and marks the agent aborted.
// An in-flight provider stream resolves with stopReason=aborted; the
// queue is preserved, and a later Prompt resumes from the next queued
// message.
func (a *Agent) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aborted = true
	if a.cancelFn != nil {
		a.cancelFn()
	}
}

// Prompt synthesizes a user message from text/attachments and either
// enqueues it (if a turn is already streaming) or starts a new turn.
func (a *Agent) Prompt(ctx context.Context, text string, attachments []models.Attachment) error {
	msg := a.buildUserMessage(text, attachments)

	a.mu.Lock()
	if a.isStreaming {
		a.queue.enqueue(msg)
		a.mu.Unlock()
		return nil
	}
	a.isStreaming = true
	a.aborted = false
	a.mu.Unlock()

	return a.runTurns(ctx, msg)
}

func (a *Agent) buildUserMessage(text string, attachments []models.Attachment) models.Message {
	now := time.Now()
	var needsExtraction bool
	for _, att := range attachments {
		if att.Type == "document" && att.ExtractedText == "" {
			needsExtraction = true
			break
		}
	}
	if needsExtraction && a.attachmentTransformer != nil {
		blocks := append([]models.ContentBlock{models.TextBlock(text)}, a.attachmentTransformer(attachments)...)
		return *models.NewUserMessageFromBlocks(blocks, attachments, now)
	}
	return models.Message{Role: models.RoleUser, UserText: text, UserAttachments: attachments, Timestamp: now}
}

// runTurns drives turns until the queue is drained (spec §4.7 prompt
// step 3, the queue-drain loop in step f). After an aborted turn it stops
// without draining, leaving the queue for a later Prompt.
func (a *Agent) runTurns(ctx context.Context, first models.Message) error {
	defer func() {
		a.mu.Lock()
		a.isStreaming = false
		a.cancelFn = nil
		a.mu.Unlock()
		a.emit(Event{Kind: EventAgentEnd})
	}()

	current := first
	for {
		if err := a.runOneTurn(ctx, current); err != nil {
			return err
		}

		a.mu.Lock()
		if a.aborted {
			a.mu.Unlock()
			return nil
		}
		next, ok := a.queue.popFront()
		a.mu.Unlock()
		if !ok {
			return nil
		}
		current = next
	}
}

// runOneTurn appends userMsg to the tree and drives model-call rounds
// until the assistant stops without requesting another tool call, i.e.
// stopReason != toolUse (spec §4.7 step 3). Each round that ends in
// toolUse dispatches the requested tool calls, appends their results,
// and loops back into another model call without returning to the
// caller — this is the "same logical turn" tool round trip, not a new
// queued prompt.
func (a *Agent) runOneTurn(ctx context.Context, userMsg models.Message) error {
	turnCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancelFn = cancel
	a.mu.Unlock()
	defer cancel()

	a.emit(Event{Kind: EventTurnStart})

	if _, err := a.tree.AppendMessage(&userMsg, a.cwd, a.systemFingerprint, a.model); err != nil {
		return err
	}
	a.emit(Event{Kind: EventMessageEnd, Message: userMsg.Clone()})

	for {
		final, err := a.runModelRound(turnCtx)
		if err != nil {
			return err
		}
		if final.IsErroredOrAborted() {
			a.emit(Event{Kind: EventTurnEnd, Message: final.Clone(), Err: a.lastErr})
			return nil
		}
		if final.StopReason != models.StopReasonToolUse {
			a.emit(Event{Kind: EventTurnEnd, Message: final.Clone()})
			return nil
		}
		if err := a.dispatchToolCalls(turnCtx, final); err != nil {
			return err
		}
	}
}

// runModelRound assembles the current session context, invokes the
// provider driver, and appends the resulting assistant message to the
// tree, returning it.
func (a *Agent) runModelRound(turnCtx context.Context) (*models.Message, error) {
	messages, err := a.tree.BuildSessionContext()
	if err != nil {
		return nil, err
	}

	opts := providers.Options{ThinkingLevel: a.thinkingLevel, Prices: a.prices}
	wireReq, err := a.driver.BuildRequest(a.model, messages, a.systemPrompt, a.toolDefs, opts)
	if err != nil {
		return nil, a.finishWithError(err)
	}

	stream := a.driver.Stream(turnCtx, wireReq, opts)
	var finalAssistant *models.Message
	for {
		ev, ok := stream.Next()
		if !ok {
			break
		}
		a.emit(Event{Kind: EventMessageDelta, DeltaText: ev.TextDelta})
		if ev.Kind == providers.EventDone || ev.Kind == providers.EventError {
			finalAssistant = ev.Partial
		}
	}
	result, streamErr := stream.Result()
	if finalAssistant == nil {
		finalAssistant = result
	}
	if finalAssistant == nil {
		return nil, a.finishWithError(errors.New("agent: provider stream produced no assistant message"))
	}

	if _, err := a.tree.AppendMessage(finalAssistant, a.cwd, a.systemFingerprint, a.model); err != nil {
		return nil, err
	}
	a.emit(Event{Kind: EventMessageEnd, Message: finalAssistant.Clone()})

	if finalAssistant.IsErroredOrAborted() {
		a.mu.Lock()
		a.lastErr = streamErr
		a.mu.Unlock()
	}

	return finalAssistant, nil
}

func (a *Agent) finishWithError(err error) error {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
	a.emit(Event{Kind: EventTurnEnd, Err: err})
	return err
}
