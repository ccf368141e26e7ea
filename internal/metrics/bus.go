package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "induction_bus_published_total",
		Help: "Total number of events published per topic",
	}, []string{"topic"})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "induction_bus_dropped_total",
		Help: "Total number of dropped deliveries per topic and reason",
	}, []string{"topic", "reason"})

	BusSubscriptionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "induction_bus_subscriptions_active",
		Help: "Current number of active subscriptions per topic",
	}, []string{"topic"})
)

// IncBusPublished records one event published to topic.
func IncBusPublished(topic string) {
	BusPublishedTotal.WithLabelValues(normalizeTopicLabel(topic)).Inc()
}

// IncBusDropped records a dropped delivery for topic, with reason one
// of "queue_full_drop_oldest", "queue_full_drop_subscription"; an empty
// reason is recorded as "unknown".
func IncBusDropped(topic, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(normalizeTopicLabel(topic), reason).Inc()
}

// SetSubscriptionsActive sets the current subscriber gauge for topic.
func SetSubscriptionsActive(topic string, n int) {
	BusSubscriptionsActive.WithLabelValues(normalizeTopicLabel(topic)).Set(float64(n))
}

func normalizeTopicLabel(topic string) string {
	if topic == "" {
		return "unknown"
	}
	return topic
}
