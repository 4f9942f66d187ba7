package consumer

import "github.com/prometheus/client_golang/prometheus"

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of Kafka messages successfully handled.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Messages left uncommitted after every handler attempt failed.",
	}, []string{"topic", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "consumer",
		Name:      "handler_retries_total",
		Help:      "Handler attempts repeated after a failure.",
	}, []string{"topic", "event_type"})

	commitErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "consumer",
		Name:      "commit_errors_total",
		Help:      "Offset commits rejected by the broker.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "goodfit",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter, retryCounter, commitErrorCounter, lastMessageGauge)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordRetry(msg Message) {
	retryCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordCommitError(topic string) {
	commitErrorCounter.WithLabelValues(topic).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
