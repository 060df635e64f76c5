package trade

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	sweepRuns   prometheus.Counter
	sweepSwept  prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsRegistry *engineMetrics
)

// Metrics returns the lazily-initialised engine metrics registry used to
// record lifecycle activity.
func Metrics() *engineMetrics {
	metricsOnce.Do(func() {
		metricsRegistry = &engineMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tradevault",
				Subsystem: "engine",
				Name:      "transitions_total",
				Help:      "Total successful trade lifecycle transitions segmented by outcome.",
			}, []string{"outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tradevault",
				Subsystem: "engine",
				Name:      "failures_total",
				Help:      "Total rejected lifecycle operations segmented by operation.",
			}, []string{"operation"}),
			sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tradevault",
				Subsystem: "engine",
				Name:      "sweep_runs_total",
				Help:      "Number of expiry sweep invocations.",
			}),
			sweepSwept: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tradevault",
				Subsystem: "engine",
				Name:      "sweep_expired_total",
				Help:      "Number of trades reclassified as expired by the sweeper.",
			}),
		}
		prometheus.MustRegister(
			metricsRegistry.transitions,
			metricsRegistry.failures,
			metricsRegistry.sweepRuns,
			metricsRegistry.sweepSwept,
		)
	})
	return metricsRegistry
}

func (m *engineMetrics) observeTransition(outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(outcome).Inc()
}

func (m *engineMetrics) observeFailure(operation string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation).Inc()
}

func (m *engineMetrics) observeSweep(swept int) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepSwept.Add(float64(swept))
}
