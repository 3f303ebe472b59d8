package eventBus

import (
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/pkg/eventBus/eventBusTypes"
	"go.uber.org/zap"
)

// EventBus fans events out to in-process consumers. Delivery is best effort: a consumer whose channel is full
// misses the event and the publisher never blocks.
type EventBus struct {
	consumers   *eventBusTypes.ConsumerList
	metricsSink *metrics.MetricsSink
	logger      *zap.Logger
}

func NewEventBus(ms *metrics.MetricsSink, l *zap.Logger) *EventBus {
	return &EventBus{
		consumers:   eventBusTypes.NewConsumerList(),
		metricsSink: ms,
		logger:      l,
	}
}

func (eb *EventBus) Subscribe(consumer *eventBusTypes.Consumer) {
	eb.consumers.Add(consumer)
	eb.logger.Sugar().Debugw("Subscribed consumer",
		zap.String("consumerId", string(consumer.Id)),
		zap.Int("consumers", eb.consumers.Len()),
	)
}

func (eb *EventBus) Unsubscribe(consumer *eventBusTypes.Consumer) {
	eb.consumers.Remove(consumer)
	eb.logger.Sugar().Debugw("Unsubscribed consumer", zap.String("consumerId", string(consumer.Id)))
}

// Publish returns how many consumers the event was handed to.
func (eb *EventBus) Publish(event *eventBusTypes.Event) int {
	delivered := 0
	for _, consumer := range eb.consumers.Snapshot() {
		if consumer.Channel == nil || !consumer.Wants(event) {
			continue
		}
		select {
		case consumer.Channel <- event:
			delivered++
		default:
			eb.logger.Sugar().Warnw("Consumer channel is full, dropping event",
				zap.String("consumerId", string(consumer.Id)),
				zap.String("eventName", event.Name),
			)
			eb.emit(event.Name, "dropped")
		}
	}
	if delivered > 0 {
		eb.emit(event.Name, "delivered")
	}
	return delivered
}

func (eb *EventBus) emit(eventName string, outcome string) {
	_ = eb.metricsSink.Incr(metricsTypes.Metric_Incr_EventDelivery, []metricsTypes.MetricsLabel{
		{Name: "event", Value: eventName},
		{Name: "outcome", Value: outcome},
	}, 1)
}
