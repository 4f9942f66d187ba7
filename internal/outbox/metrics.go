package outbox

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// DLQ outcome label values.
const (
	dlqOutcomeRequeued    = "requeued"
	dlqOutcomeQuarantined = "quarantined"
	dlqOutcomeRetry       = "retry_scheduled"
)

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Activity change events published to Kafka, by event type.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Activity change events whose batch failed to publish, by event type.",
	}, []string{"event_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "goodfit",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent delivering and marking a non-empty outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Outbox events moved to the dead-letter table, by topic.",
	}, []string{"topic"})

	dlqOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "Dead-letter entries handled by the DLQ manager, by outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "goodfit",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Dead-letter entries not yet requeued or quarantined.",
	})

	registryBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "goodfit",
		Subsystem: "schema_registry",
		Name:      "breaker_state",
		Help:      "Schema Registry circuit breaker state (0 closed, 1 half-open, 2 open).",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, dlqOutcomes, dlqBacklogGauge, registryBreakerState)
}

func recordBatch(counter *prometheus.CounterVec, messages []Message) {
	for _, msg := range messages {
		counter.WithLabelValues(msg.EventType).Inc()
	}
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqOutcomes.WithLabelValues(entry.Topic, entry.EventType, outcome).Inc()
}

func (m *DLQManager) updateBacklogGauge(ctx context.Context) {
	var count int
	if err := m.db.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		m.logger.WarnContext(ctx, "dlq backlog count failed", slog.Any("error", err))
		return
	}
	dlqBacklogGauge.Set(float64(count))
}
