package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the process-wide Prometheus collectors shared by every
// Limiter. Labeled by the logical API name a Limiter guards.
type metrics struct {
	allowed   *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	waitSecs  *prometheus.HistogramVec
	occupancy *prometheus.GaugeVec
}

func newMetrics() *metrics {
	return &metrics{
		allowed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_ratelimit_requests_allowed_total",
				Help: "Calls let through a sliding-window limiter, by API name.",
			},
			[]string{"name"},
		),
		rejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_ratelimit_requests_rejected_total",
				Help: "Calls rejected by a sliding-window limiter, by API name.",
			},
			[]string{"name"},
		),
		waitSecs: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_ratelimit_wait_seconds",
				Help:    "Time callers spent blocked in WaitForSlot, by API name.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"name"},
		),
		occupancy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentcore_ratelimit_window_occupancy",
				Help: "Calls currently counted within a limiter's sliding window, by API name.",
			},
			[]string{"name"},
		),
	}
}

// defaultMetrics is registered once per process, the way the teacher's
// observability package registers its Metrics against the default
// Prometheus registry at package scope.
var defaultMetrics = newMetrics()
