package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "induction_decision_total",
		Help: "Total number of induction decisions generated, by shift and classification",
	}, []string{"shift", "classification"})

	decisionConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "induction_decision_confidence",
		Help:    "Confidence score of generated decisions",
		Buckets: []float64{0, 20, 40, 60, 80, 90, 95, 100},
	}, []string{"shift"})

	decisionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "induction_decision_conflicts_total",
		Help: "Total number of conflicts raised while generating a decision",
	}, []string{"shift"})
)

// RecordDecision records one ranked trainset's classification outcome
// for a shift.
func RecordDecision(shift, classification string) {
	decisionTotal.WithLabelValues(normalizeShiftLabel(shift), normalizeClassificationLabel(classification)).Inc()
}

// RecordConfidence records the confidence score an InductionDecision
// run produced.
func RecordConfidence(shift string, confidence float64) {
	decisionConfidence.WithLabelValues(normalizeShiftLabel(shift)).Observe(confidence)
}

// RecordConflicts increments the conflict counter by n for a shift.
func RecordConflicts(shift string, n int) {
	if n <= 0 {
		return
	}
	decisionConflicts.WithLabelValues(normalizeShiftLabel(shift)).Add(float64(n))
}

func normalizeShiftLabel(shift string) string {
	switch strings.ToUpper(strings.TrimSpace(shift)) {
	case "MORNING", "AFTERNOON", "EVENING", "NIGHT":
		return strings.ToUpper(strings.TrimSpace(shift))
	default:
		return "unknown"
	}
}

func normalizeClassificationLabel(c string) string {
	switch strings.ToUpper(strings.TrimSpace(c)) {
	case "INDUCTION_READY", "CONDITIONAL_READY", "REQUIRES_ATTENTION", "NOT_READY":
		return strings.ToUpper(strings.TrimSpace(c))
	default:
		return "unknown"
	}
}
