package circuit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the process-wide Prometheus collectors shared by every
// Breaker, labeled by the breaker's name.
type metrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	calls       *prometheus.CounterVec
}

// stateValue maps a State to the gauge value the dashboard expects:
// closed=0, half-open=1, open=2.
func stateValue(s State) float64 {
	switch s {
	case Closed:
		return 0
	case HalfOpen:
		return 1
	case Open:
		return 2
	default:
		return 0
	}
}

func newMetrics() *metrics {
	return &metrics{
		state: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentcore_circuit_state",
				Help: "Current breaker state by name: 0=closed, 1=half-open, 2=open.",
			},
			[]string{"name"},
		),
		transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_circuit_transitions_total",
				Help: "Breaker state transitions, by name and resulting state.",
			},
			[]string{"name", "to"},
		),
		rejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_circuit_rejected_total",
				Help: "Calls rejected while a breaker was open, by name.",
			},
			[]string{"name"},
		),
		calls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_circuit_calls_total",
				Help: "Calls let through a breaker, by name and outcome.",
			},
			[]string{"name", "outcome"},
		),
	}
}

var defaultMetrics = newMetrics()
