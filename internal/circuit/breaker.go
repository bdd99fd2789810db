// Package circuit implements the per-service circuit breaker described in
// spec §4.9: closed/open/half-open with a failure threshold to trip,
// instant rejection while open, and half-open recovery.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three circuit states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half-open"
)

// ErrOpen is returned by Execute while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// Config configures a Breaker.
type Config struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	OnStateChange    func(from, to State)
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Breaker guards a single logical service call.
type Breaker struct {
	config Config

	mu              sync.RWMutex
	state           State
	failures        int
	successes       int
	lastFailure     time.Time
	lastStateChange time.Time
}

// New constructs a Breaker in the closed state.
func New(config Config) *Breaker {
	config.applyDefaults()
	return &Breaker{config: config, state: Closed, lastStateChange: time.Now()}
}

// Execute runs fn under the breaker's protection.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.canExecute(); err != nil {
		return err
	}
	err := fn(ctx)
	b.recordResult(err)
	return err
}

// ExecuteWithResult runs a value-returning fn under the breaker's
// protection.
func ExecuteWithResult[T any](b *Breaker, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.canExecute(); err != nil {
		return zero, err
	}
	result, err := fn(ctx)
	b.recordResult(err)
	return result, err
}

func (b *Breaker) canExecute() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if time.Since(b.lastStateChange) >= b.config.Timeout {
			b.transitionTo(HalfOpen)
			return nil
		}
		defaultMetrics.rejected.WithLabelValues(b.config.Name).Inc()
		return ErrOpen
	case HalfOpen:
		return nil
	default:
		return nil
	}
}

func (b *Breaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		defaultMetrics.calls.WithLabelValues(b.config.Name, "failure").Inc()
		b.recordFailure()
	} else {
		defaultMetrics.calls.WithLabelValues(b.config.Name, "success").Inc()
		b.recordSuccess()
	}
}

func (b *Breaker) recordFailure() {
	b.failures++
	b.successes = 0
	b.lastFailure = time.Now()

	switch b.state {
	case Closed:
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(Open)
		}
	case HalfOpen:
		b.transitionTo(Open)
	}
}

func (b *Breaker) recordSuccess() {
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionTo(Closed)
		}
	}
}

func (b *Breaker) transitionTo(newState State) {
	oldState := b.state
	b.state = newState
	b.lastStateChange = time.Now()
	b.failures = 0
	b.successes = 0

	defaultMetrics.state.WithLabelValues(b.config.Name).Set(stateValue(newState))
	defaultMetrics.transitions.WithLabelValues(b.config.Name, string(newState)).Inc()

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

// Allow reports whether a call may proceed right now, advancing an open
// breaker to half-open once its timeout has elapsed. Callers that cannot
// express their work as the synchronous fn Execute expects (a streaming
// call that returns before its result is known) use Allow plus Record
// instead of Execute.
func (b *Breaker) Allow() error {
	return b.canExecute()
}

// Record reports the outcome of a call let through by Allow.
func (b *Breaker) Record(err error) {
	b.recordResult(err)
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats summarizes a breaker's current counters, for status surfaces.
type Stats struct {
	Name            string
	State           State
	Failures        int
	Successes       int
	LastFailure     time.Time
	LastStateChange time.Time
}

// Stats returns the breaker's current stats.
func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Name: b.config.Name, State: b.state, Failures: b.failures, Successes: b.successes,
		LastFailure: b.lastFailure, LastStateChange: b.lastStateChange,
	}
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.successes = 0
	b.lastStateChange = time.Now()
}

// Registry manages one breaker per logical service name.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
}

// NewRegistry constructs a Registry using defaults for breakers created
// via Get.
func NewRegistry(defaults Config) *Registry {
	defaults.applyDefaults()
	return &Registry{breakers: make(map[string]*Breaker), defaults: defaults}
}

// Get returns or creates the breaker for name using the registry defaults.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	config := r.defaults
	config.Name = name
	b = New(config)
	r.breakers[name] = b
	return b
}

// GetWithConfig returns or creates the breaker for name with a custom
// config, ignoring registry defaults.
func (r *Registry) GetWithConfig(name string, config Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	config.Name = name
	b := New(config)
	r.breakers[name] = b
	return b
}

// Stats returns stats for every breaker in the registry.
func (r *Registry) Stats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Stats())
	}
	return out
}

// OpenNames returns the names of every breaker currently open.
func (r *Registry) OpenNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, b := range r.breakers {
		if b.State() == Open {
			out = append(out, name)
		}
	}
	return out
}

// ResetAll resets every breaker in the registry to closed.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}

// Default is the process-wide registry used by callers that don't need
// per-call isolation.
var Default = NewRegistry(Config{})

// Get returns a breaker from the default registry.
func Get(name string) *Breaker { return Default.Get(name) }
