// Package eventstream implements the single-producer/single-consumer event
// stream primitive described in spec §4.1: a back-pressure-free, unbounded
// queue of events that completes once a terminal event is produced, after
// which a final result (or error) becomes available.
package eventstream

import "sync"

// Stream is a lazy, unbounded sequence of events of type E that resolves to
// a final value of type R. The zero value is not usable; construct with
// New.
type Stream[E any, R any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buffer  []E
	ended   bool
	result  R
	err     error
	drained bool // producer called End; no more Push accepted
}

// New creates a Stream ready to accept Push/End from a single producer
// goroutine and Next/Result from a single consumer goroutine.
func New[E any, R any]() *Stream[E, R] {
	s := &Stream[E, R]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Push appends an event to the stream. Once End has been called, further
// Push calls are silently discarded (spec §4.1).
func (s *Stream[E, R]) Push(e E) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return
	}
	s.buffer = append(s.buffer, e)
	s.cond.Broadcast()
}

// End marks the stream complete with its resolved result or error. It is
// idempotent: only the first call takes effect.
func (s *Stream[E, R]) End(result R, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return
	}
	s.drained = true
	s.ended = true
	s.result = result
	s.err = err
	s.cond.Broadcast()
}

// Next blocks until an event is available or the stream has both drained
// its buffer and ended. It returns ok=false once the sequence is
// exhausted.
func (s *Stream[E, R]) Next() (E, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buffer) == 0 && !s.ended {
		s.cond.Wait()
	}
	if len(s.buffer) == 0 {
		var zero E
		return zero, false
	}
	e := s.buffer[0]
	s.buffer = s.buffer[1:]
	return e, true
}

// Result blocks until the stream has ended, then returns the resolved
// value or the captured terminal error. It is idempotent: repeated calls
// return the same value without blocking once resolved.
func (s *Stream[E, R]) Result() (R, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.ended {
		s.cond.Wait()
	}
	return s.result, s.err
}

// Drain consumes all remaining events, discarding them, then returns the
// final result. Useful for callers that only care about the resolved
// value.
func (s *Stream[E, R]) Drain() (R, error) {
	for {
		if _, ok := s.Next(); !ok {
			break
		}
	}
	return s.Result()
}

// All consumes every event into a slice and returns it alongside the final
// result. Intended for tests and small streams only, since it defeats
// back-pressure-free streaming.
func (s *Stream[E, R]) All() ([]E, R, error) {
	var events []E
	for {
		e, ok := s.Next()
		if !ok {
			break
		}
		events = append(events, e)
	}
	result, err := s.Result()
	return events, result, err
}
