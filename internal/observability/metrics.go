package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "goodfit",
		Subsystem: "activities",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity write committed.",
	})
	notificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "activities",
		Name:      "notification_failures_total",
		Help:      "Activity change notifications that failed after the write committed.",
	}, []string{"kind"})
	recomputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "aggregation",
		Name:      "recomputes_total",
		Help:      "Daily summary recomputations by outcome.",
	}, []string{"outcome"})
	recomputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "goodfit",
		Subsystem: "aggregation",
		Name:      "recompute_duration_seconds",
		Help:      "Latency of daily summary recomputations including retries.",
		Buckets:   prometheus.DefBuckets,
	})
	aggregationConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "aggregation",
		Name:      "conflicts_total",
		Help:      "Recompute attempts that hit a serialization conflict and were retried.",
	})
	reconcileDrift = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "aggregation",
		Name:      "reconcile_corrections_total",
		Help:      "Reconciliations that changed a user's stats.",
	})
	tokenOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "auth",
		Name:      "token_outcomes_total",
		Help:      "Token operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goodfit",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "goodfit",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	prometheus.MustRegister(
		activityPersistGauge,
		notificationFailures,
		recomputeTotal,
		recomputeDuration,
		aggregationConflicts,
		reconcileDrift,
		tokenOutcomes,
		httpRequests,
		httpDuration,
	)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordNotificationFailure counts a post-commit notification failure.
func RecordNotificationFailure(kind string) {
	notificationFailures.WithLabelValues(kind).Inc()
}

// RecordRecompute tracks a finished recomputation.
func RecordRecompute(outcome string, elapsed time.Duration) {
	recomputeTotal.WithLabelValues(outcome).Inc()
	recomputeDuration.Observe(elapsed.Seconds())
}

// RecordAggregationConflict counts a retried serialization conflict.
func RecordAggregationConflict() {
	aggregationConflicts.Inc()
}

// RecordReconcileCorrection counts a reconciliation that found drift.
func RecordReconcileCorrection() {
	reconcileDrift.Inc()
}

// RecordTokenOutcome counts a token operation result.
func RecordTokenOutcome(operation, outcome string) {
	tokenOutcomes.WithLabelValues(operation, outcome).Inc()
}

// RecordHTTPRequest tracks a served request. route is the matched pattern, not the raw path.
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Collectors exposes the collectors for tests.
var (
	NotificationFailures = notificationFailures
	AggregationConflicts = aggregationConflicts
	TokenOutcomes        = tokenOutcomes
	HTTPRequests         = httpRequests
)
