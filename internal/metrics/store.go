package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "induction_store_op_duration_seconds",
		Help:    "Fleet store adapter operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "outcome"})

	storeCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "induction_store_cache_total",
		Help: "Snapshot cache hit/miss counts",
	}, []string{"result"})

	storeCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "induction_store_circuit_state",
		Help: "Circuit breaker state per backend (0=closed, 1=open, 2=half-open)",
	}, []string{"backend"})
)

// ObserveStoreOp records one store operation's latency and outcome.
func ObserveStoreOp(op, outcome string, seconds float64) {
	storeOpDuration.WithLabelValues(normalizeOpLabel(op), normalizeOutcomeLabel(outcome)).Observe(seconds)
}

// IncCacheResult increments the cache hit/miss counter.
func IncCacheResult(hit bool) {
	if hit {
		storeCacheHits.WithLabelValues("hit").Inc()
		return
	}
	storeCacheHits.WithLabelValues("miss").Inc()
}

// SetCircuitState publishes the current circuit breaker state for a backend.
func SetCircuitState(backend string, state int) {
	storeCircuitState.WithLabelValues(normalizeOpLabel(backend)).Set(float64(state))
}

func normalizeOpLabel(op string) string {
	if op == "" {
		return "unknown"
	}
	return strings.ToLower(strings.TrimSpace(op))
}

func normalizeOutcomeLabel(outcome string) string {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "ok", "not_found", "conflict", "store_unavailable", "timeout":
		return strings.ToLower(strings.TrimSpace(outcome))
	default:
		return "unknown"
	}
}
