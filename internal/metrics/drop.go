package metrics

import (
	"tradeboard/logger"
	"tradeboard/models"
)

// EmitDropMetric counts one inbound message dropped at stage. Normalization
// drops also feed the per-topic Prometheus counter.
func EmitDropMetric(log *logger.Log, name Name, topic models.Topic, stage string) {
	if name == NormalizationDropped {
		NormalizationFailed(topic)
	}
	var fields logger.Fields
	if stage != "" {
		fields = logger.Fields{"stage": stage}
	}
	Emit(log, Metric{
		Component: "message_drops",
		Name:      name,
		Topic:     topic,
		Direction: models.Inbound,
		Kind:      Counter,
		Value:     1,
		Fields:    fields,
	})
}
