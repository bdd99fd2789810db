package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamloop/agentcore/internal/circuit"
	"github.com/streamloop/agentcore/internal/eventstream"
	"github.com/streamloop/agentcore/internal/ratelimit"
	"github.com/streamloop/agentcore/pkg/models"
)

type stubDriver struct {
	calls int
	err   error
}

func (d *stubDriver) Name() string { return "stub" }

func (d *stubDriver) BuildRequest(model string, messages []models.Message, system string, tools []models.ToolDef, opts Options) (WireRequest, error) {
	return nil, nil
}

func (d *stubDriver) Stream(ctx context.Context, req WireRequest, opts Options) *eventstream.Stream[AssistantEvent, *models.Message] {
	d.calls++
	s := eventstream.New[AssistantEvent, *models.Message]()
	s.Push(AssistantEvent{Kind: EventStart})
	s.End(&models.Message{Role: models.RoleAssistant}, d.err)
	return s
}

func TestGuardedDriverProxiesEventsAndRecordsSuccess(t *testing.T) {
	inner := &stubDriver{}
	breaker := circuit.New(circuit.Config{Name: "t"})
	limiter := ratelimit.New(ratelimit.Config{})
	guarded := NewGuardedDriver(inner, limiter, breaker)

	stream := guarded.Stream(context.Background(), nil, Options{})
	events, result, err := stream.All()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventStart, events[0].Kind)
	require.NotNil(t, result)
	assert.Equal(t, models.RoleAssistant, result.Role)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, circuit.Closed, breaker.State())
}

func TestGuardedDriverRejectsWithoutCallingInnerWhenBreakerOpen(t *testing.T) {
	inner := &stubDriver{err: errors.New("boom")}
	breaker := circuit.New(circuit.Config{Name: "t", FailureThreshold: 1})
	guarded := NewGuardedDriver(inner, nil, breaker)

	// First call fails and trips the breaker (threshold 1).
	_, _, err := guarded.Stream(context.Background(), nil, Options{}).All()
	require.Error(t, err)
	assert.Equal(t, circuit.Open, breaker.State())

	callsBefore := inner.calls
	_, _, err = guarded.Stream(context.Background(), nil, Options{}).All()
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, callsBefore, inner.calls)
}
