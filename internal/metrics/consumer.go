package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "state",
		Help:      "Consumer lifecycle state (1 for the current state)",
	}, []string{"consumer", "kind", "state"})

	consumerLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "launches_total",
		Help:      "Workers launched by a consumer",
	}, []string{"consumer", "kind"})

	consumerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "failures_total",
		Help:      "Consumer failures by error kind",
	}, []string{"consumer", "kind", "reason"})

	requirementsMissing = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "requirements_missing",
		Help:      "Missing requirements found by the last validation",
	}, []string{"consumer", "kind"})
)

// SetConsumerState marks state as current for a consumer. states lists every
// state so the others can be reset to 0.
func SetConsumerState(consumer, kind, state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		consumerState.WithLabelValues(consumer, kind, s).Set(v)
	}
}

// IncLaunches counts a launched worker.
func IncLaunches(consumer, kind string) {
	consumerLaunches.WithLabelValues(consumer, kind).Inc()
}

// IncFailures counts a failure with its error kind as reason.
func IncFailures(consumer, kind, reason string) {
	consumerFailures.WithLabelValues(consumer, kind, reason).Inc()
}

// SetRequirementsMissing records the size of the last missing list.
func SetRequirementsMissing(consumer, kind string, n int) {
	requirementsMissing.WithLabelValues(consumer, kind).Set(float64(n))
}
