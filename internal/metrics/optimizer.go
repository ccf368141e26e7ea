package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	optimizerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "induction_optimizer_runs_total",
		Help: "Total number of optimization runs by terminal status",
	}, []string{"status"})

	optimizerGenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "induction_optimizer_generation_duration_seconds",
		Help:    "Wall-clock duration of one NSGA-II generation",
		Buckets: prometheus.DefBuckets,
	})

	optimizerParetoFrontSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "induction_optimizer_pareto_front_size",
		Help:    "Size of the nondominated front at run completion",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})
)

// RecordRunTerminal records a run reaching a terminal status.
func RecordRunTerminal(status string) {
	optimizerRunsTotal.WithLabelValues(normalizeRunStatusLabel(status)).Inc()
}

// ObserveGenerationDuration records how long one generation took.
func ObserveGenerationDuration(seconds float64) {
	optimizerGenerationDuration.Observe(seconds)
}

// ObserveParetoFrontSize records the final nondominated front size.
func ObserveParetoFrontSize(n int) {
	optimizerParetoFrontSize.Observe(float64(n))
}

func normalizeRunStatusLabel(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED", "FAILED", "CANCELLED":
		return strings.ToUpper(strings.TrimSpace(status))
	default:
		return "unknown"
	}
}
