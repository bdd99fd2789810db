// Package poller implements the background pump described in spec §4.10:
// a periodic tick, gated by the agent's streaming state, that claims
// queued work from a pluggable store and forwards it as synthetic user
// prompts.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the same optional-seconds, five/six-field cron
// syntax robfig/cron's standard parser plus descriptors like "@hourly".
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// WorkItem is one unit of queued work a Store returns for claiming.
type WorkItem struct {
	ID   string
	Text string
}

// Store is the pluggable backend (SQL, HTTP, ...) work items are fetched
// and claimed from.
type Store interface {
	// Fetch returns up to limit pending work items, oldest first.
	Fetch(ctx context.Context, limit int) ([]WorkItem, error)
	// Claim marks an item as claimed so it is not fetched again. A
	// second Claim of the same id returns false, not an error.
	Claim(ctx context.Context, id string) (bool, error)
}

// AgentGate reports whether the agent is currently mid-turn; ticks are
// skipped while true.
type AgentGate interface {
	IsStreaming() bool
}

// Dispatcher forwards a claimed work item into the agent as a prompt.
type Dispatcher interface {
	Prompt(ctx context.Context, text string, attachments any) error
}

// Config configures a Poller's tick cadence and backoff policy. Schedule,
// when set, takes a cron expression (or "@every 30s"-style descriptor)
// and overrides TickInterval for computing the delay between ticks; while
// the poller is degraded, the backoff delay is used instead of the
// schedule.
type Config struct {
	TickInterval     time.Duration
	Schedule         string
	BatchLimit       int
	BackoffFactor    float64
	BackoffCap       time.Duration
	FailureThreshold int
	DedupeSize       int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 10
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Minute
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.DedupeSize <= 0 {
		c.DedupeSize = 1000
	}
	return c
}

// Poller drives the periodic claim-and-forward loop.
type Poller struct {
	store      Store
	gate       AgentGate
	dispatcher Dispatcher
	cfg        Config
	log        *slog.Logger

	schedule cron.Schedule

	mu            sync.Mutex
	seen          *lruSet
	consecFailure int
	degraded      bool
	nextDelay     time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger used for degraded/recovery records.
func WithLogger(log *slog.Logger) Option {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

// New constructs a Poller. store, gate, and dispatcher must be non-nil.
// Returns an error only if cfg.Schedule is a malformed cron expression.
func New(store Store, gate AgentGate, dispatcher Dispatcher, cfg Config, opts ...Option) (*Poller, error) {
	cfg = cfg.withDefaults()
	p := &Poller{
		store:      store,
		gate:       gate,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        slog.Default(),
		seen:       newLRUSet(cfg.DedupeSize),
		nextDelay:  cfg.TickInterval,
	}
	if expr := strings.TrimSpace(cfg.Schedule); expr != "" {
		schedule, err := cronParser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("poller: parse schedule %q: %w", expr, err)
		}
		p.schedule = schedule
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start begins ticking in a background goroutine until ctx is cancelled
// or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.run(runCtx)
}

// Stop halts the background loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	for {
		delay := p.currentDelay()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		p.tick(ctx)
	}
}

func (p *Poller) currentDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.schedule != nil && !p.degraded {
		now := time.Now()
		delay := p.schedule.Next(now).Sub(now)
		if delay <= 0 {
			return p.cfg.TickInterval
		}
		return delay
	}
	return p.nextDelay
}

// tick runs one poll cycle, skipping entirely if the agent is streaming
// (spec §4.10's isStreaming gate).
func (p *Poller) tick(ctx context.Context) {
	if p.gate != nil && p.gate.IsStreaming() {
		return
	}

	items, err := p.store.Fetch(ctx, p.cfg.BatchLimit)
	if err != nil {
		p.recordFailure(err)
		return
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return
		}
		p.claimAndDispatch(ctx, item)
	}

	p.recordSuccess()
}

func (p *Poller) claimAndDispatch(ctx context.Context, item WorkItem) {
	p.mu.Lock()
	alreadySeen := p.seen.Contains(item.ID)
	p.mu.Unlock()
	if alreadySeen {
		return
	}

	claimed, err := p.store.Claim(ctx, item.ID)
	if err != nil {
		p.recordFailure(err)
		return
	}
	if !claimed {
		return
	}

	p.mu.Lock()
	p.seen.Add(item.ID)
	p.mu.Unlock()

	if err := p.dispatcher.Prompt(ctx, item.Text, nil); err != nil {
		p.log.Error("poller: dispatch failed", "item_id", item.ID, "error", err)
	}
}

func (p *Poller) recordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecFailure++
	p.nextDelay = backoffDelay(p.cfg.TickInterval, p.cfg.BackoffFactor, p.cfg.BackoffCap, p.consecFailure)

	if !p.degraded && p.consecFailure >= p.cfg.FailureThreshold {
		p.degraded = true
		p.log.Warn("poller degraded", "consecutive_failures", p.consecFailure, "error", err)
	}
}

func (p *Poller) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	wasDegraded := p.degraded
	p.consecFailure = 0
	p.degraded = false
	p.nextDelay = p.cfg.TickInterval

	if wasDegraded {
		p.log.Info("poller recovered")
	}
}

// backoffDelay computes an exponential backoff capped at cap, for the
// nth consecutive failure (n >= 1).
func backoffDelay(base time.Duration, factor float64, cap time.Duration, n int) time.Duration {
	d := float64(base)
	for i := 1; i < n; i++ {
		d *= factor
	}
	delay := time.Duration(d)
	if delay > cap {
		return cap
	}
	if delay < base {
		return base
	}
	return delay
}

// ErrNotStarted reports a poller that was never started. Stop does not
// return it: Stop on such a poller is a no-op.
var ErrNotStarted = errors.New("poller: not started")

// lruSet is a fixed-capacity, insertion-order-evicting set used for the
// claimed-id dedup window (spec §4.10's "LRU-dedup by id").
type lruSet struct {
	cap   int
	order []string
	index map[string]struct{}
}

func newLRUSet(capacity int) *lruSet {
	return &lruSet{cap: capacity, index: make(map[string]struct{}, capacity)}
}

func (s *lruSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *lruSet) Add(id string) {
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	for len(s.order) > s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.index, oldest)
	}
}
