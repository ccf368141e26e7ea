package telemetry

import "go.opentelemetry.io/otel/attribute"

// Common attribute keys for consistent span tagging across components.
const (
	TrainsetIDKey      = "induction.trainset_id"
	ShiftKey           = "induction.shift"
	ClassificationKey  = "induction.classification"
	RunIDKey           = "optimizer.run_id"
	GenerationKey      = "optimizer.generation"
	ParetoFrontSizeKey = "optimizer.pareto_front_size"
	TopicKey           = "bus.topic"
	SubscriptionIDKey  = "bus.subscription_id"
	ErrorKindKey       = "error.kind"
)

// DecisionAttributes tags a Decision Engine span.
func DecisionAttributes(shift string, rankedCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ShiftKey, shift),
		attribute.Int("induction.ranked_count", rankedCount),
	}
}

// OptimizerAttributes tags an Optimizer run span.
func OptimizerAttributes(runID string, generation int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RunIDKey, runID),
		attribute.Int(GenerationKey, generation),
	}
}

// BusAttributes tags an Event Bus publish/deliver span.
func BusAttributes(topic, subscriptionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TopicKey, topic),
		attribute.String(SubscriptionIDKey, subscriptionID),
	}
}
