package providers

import (
	"context"

	"github.com/streamloop/agentcore/internal/circuit"
	"github.com/streamloop/agentcore/internal/eventstream"
	"github.com/streamloop/agentcore/internal/ratelimit"
	"github.com/streamloop/agentcore/pkg/models"
)

// GuardedDriver wraps a Driver with a rate limiter and a circuit breaker,
// the way the teacher wraps its own provider clients before a call
// reaches the network. Either Limiter or Breaker may be nil to skip that
// guard.
type GuardedDriver struct {
	Driver
	Limiter *ratelimit.Limiter
	Breaker *circuit.Breaker
}

// NewGuardedDriver wraps d with the given limiter and breaker.
func NewGuardedDriver(d Driver, limiter *ratelimit.Limiter, breaker *circuit.Breaker) *GuardedDriver {
	return &GuardedDriver{Driver: d, Limiter: limiter, Breaker: breaker}
}

func (g *GuardedDriver) rejected(err error) *eventstream.Stream[AssistantEvent, *models.Message] {
	s := eventstream.New[AssistantEvent, *models.Message]()
	s.End(nil, err)
	return s
}

// Stream checks the breaker and rate limiter before opening the
// underlying stream, then proxies every event through while recording the
// call's eventual outcome against the breaker once the stream ends.
func (g *GuardedDriver) Stream(ctx context.Context, req WireRequest, opts Options) *eventstream.Stream[AssistantEvent, *models.Message] {
	if g.Breaker != nil {
		if err := g.Breaker.Allow(); err != nil {
			return g.rejected(err)
		}
	}
	if g.Limiter != nil {
		if err := g.Limiter.WaitForSlot(ctx); err != nil {
			return g.rejected(err)
		}
		g.Limiter.RecordRequest()
	}

	inner := g.Driver.Stream(ctx, req, opts)
	if g.Breaker == nil {
		return inner
	}

	out := eventstream.New[AssistantEvent, *models.Message]()
	go func() {
		for {
			ev, ok := inner.Next()
			if !ok {
				break
			}
			out.Push(ev)
		}
		result, err := inner.Result()
		g.Breaker.Record(err)
		out.End(result, err)
	}()
	return out
}
