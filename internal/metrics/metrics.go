package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeNew labels decisions that accepted the alert as new.
	OutcomeNew = "new"
	// OutcomeDuplicate labels decisions merged into an existing alert.
	OutcomeDuplicate = "duplicate"
)

var (
	processedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alarm_dedup",
			Name:      "processed_total",
			Help:      "Total alerts classified, partitioned by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	processSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alarm_dedup",
			Name:      "process_seconds",
			Help:      "Per-alert deduplication latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	degradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alarm_dedup",
			Name:      "degraded_total",
			Help:      "Fail-open decisions taken because the recency index was unreachable.",
		},
	)
)

// Register attaches the deduplication collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		processedTotal,
		processSeconds,
		degradedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveProcess records one classification with its latency.
func ObserveProcess(duration time.Duration, strategy string, duplicate bool) {
	outcome := OutcomeNew
	if duplicate {
		outcome = OutcomeDuplicate
	}
	processedTotal.WithLabelValues(strategy, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	processSeconds.Observe(duration.Seconds())
}

// RecordDegraded counts a fail-open decision.
func RecordDegraded() {
	degradedTotal.Inc()
}
