// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"token-presale-ledger/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	PurchasesTotal     *prometheus.CounterVec
	TokensSoldTotal    *prometheus.CounterVec
	PaymentVolumeTotal *prometheus.CounterVec
	PriceUpdatesTotal  prometheus.Counter
	StageAdvancesTotal *prometheus.CounterVec
	FinalizationsTotal prometheus.Counter

	// Rejection metrics
	OperationErrors *prometheus.CounterVec

	// API metrics
	RequestDuration *prometheus.HistogramVec

	// Feed metrics
	FeedSubscribers prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_presale_ledger"
	}

	return &Metrics{
		PurchasesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "purchases_total",
			Help:      "Total number of committed purchases by rail and payment mode",
		}, []string{"rail", "mode"}),
		TokensSoldTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens_sold_total",
			Help:      "Total tokens sold in user units by rail",
		}, []string{"rail"}),
		PaymentVolumeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "payment_volume_total",
			Help:      "Total payment volume by rail, in the rail's payment unit",
		}, []string{"rail"}),
		PriceUpdatesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "price_updates_total",
			Help:      "Total number of price updates",
		}),
		StageAdvancesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "stage_advances_total",
			Help:      "Total number of stage transitions by resulting stage",
		}, []string{"stage"}),
		FinalizationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "finalizations_total",
			Help:      "Total number of completed finalizations",
		}),

		OperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_errors_total",
			Help:      "Total number of rejected operations by operation and reason",
		}, []string{"operation", "reason"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),

		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Number of connected websocket feed subscribers",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOperationError records a rejected ledger operation.
func (m *Metrics) RecordOperationError(operation, reason string) {
	m.OperationErrors.WithLabelValues(operation, reason).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// MetricsSink updates ledger counters from committed events. It plugs into
// the same event fan-out as the log and archive sinks.
type MetricsSink struct {
	metrics *Metrics
}

// NewMetricsSink creates a sink that records event metrics.
func NewMetricsSink(metrics *Metrics) *MetricsSink {
	return &MetricsSink{metrics: metrics}
}

// Publish updates the counters for the event.
func (s *MetricsSink) Publish(_ context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case *domain.PurchaseEvent:
		s.metrics.PurchasesTotal.WithLabelValues(e.Rail, e.Mode.String()).Inc()
		s.metrics.TokensSoldTotal.WithLabelValues(e.Rail).Add(float64(e.Tokens))
		s.metrics.PaymentVolumeTotal.WithLabelValues(e.Rail).Add(float64(e.AmountPaid))
	case *domain.PriceUpdateEvent:
		s.metrics.PriceUpdatesTotal.Inc()
	case *domain.StageEvent:
		s.metrics.StageAdvancesTotal.WithLabelValues(e.Stage.String()).Inc()
	case *domain.FinalizeEvent:
		s.metrics.FinalizationsTotal.Inc()
	}
	return nil
}
