package agent

import "github.com/streamloop/agentcore/pkg/models"

// EventKind enumerates the agent's lifecycle events (spec §4.7).
type EventKind string

const (
	EventTurnStart         EventKind = "turn_start"
	EventMessageEnd        EventKind = "message_end"
	EventToolResultPartial EventKind = "toolresult_partial"
	EventTurnEnd           EventKind = "turn_end"
	EventAgentEnd          EventKind = "agent_end"
	EventStateUpdate       EventKind = "state-update"
	EventMessageDelta      EventKind = "message_delta"
)

// Event is delivered synchronously to every subscriber as it happens.
type Event struct {
	Kind EventKind

	// message_end
	Message *models.Message

	// toolresult_partial
	ToolCallID string
	Partial    string

	// message_delta mirrors the underlying provider event so observers can
	// render incremental assistant output.
	DeltaText string

	// Err carries the turn's terminal error, if any, on turn_end.
	Err error
}

// Observer receives every Event synchronously, in emission order. A panic
// inside an observer is recovered and logged through the agent's logger
// rather than propagating into the turn loop; it is not delivered to
// observers as an event.
type Observer func(Event)

// emit delivers ev to every observer, recovering from and reporting any
// observer panic so one broken subscriber cannot break the turn loop.
func (a *Agent) emit(ev Event) {
	for _, obs := range a.observers {
		a.safeInvoke(obs, ev)
	}
}

func (a *Agent) safeInvoke(obs Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			a.reportObserverPanic(r)
		}
	}()
	obs(ev)
}

func (a *Agent) reportObserverPanic(r any) {
	if a.log != nil {
		a.log.Error("agent observer panicked", "recovered", r)
	}
}
