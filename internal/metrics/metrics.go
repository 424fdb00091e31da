// Package metrics exposes tradingd's Prometheus series and an
// implementation of internal/core/loop.Metrics, grounded on the
// teacher's internal/metrics/metrics.go, trimmed of strategy/portfolio
// series that have no SPEC_FULL.md source and extended with the
// Event Loop's funnel and latency series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TradingMetrics holds every Prometheus series tradingd registers.
type TradingMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	OrdersSubmittedTotal *prometheus.CounterVec
	OrdersFilledTotal    *prometheus.CounterVec
	OrdersRejectedTotal  *prometheus.CounterVec
	OrdersCancelledTotal *prometheus.CounterVec
	EventLatency         *prometheus.HistogramVec

	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrors        *prometheus.CounterVec

	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	TicksIngestedTotal *prometheus.CounterVec
	TicksCoalescedTotal *prometheus.CounterVec
}

// NewTradingMetrics creates and registers every series under namespace.
func NewTradingMetrics(namespace string) *TradingMetrics {
	if namespace == "" {
		namespace = "tradingd"
	}

	return &TradingMetrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		OrdersSubmittedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_submitted_total",
				Help:      "Total number of orders submitted",
			},
			[]string{},
		),
		OrdersFilledTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_filled_total",
				Help:      "Total number of orders filled or partially filled",
			},
			[]string{},
		),
		OrdersRejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_rejected_total",
				Help:      "Total number of orders rejected at validation",
			},
			[]string{},
		),
		OrdersCancelledTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_cancelled_total",
				Help:      "Total number of orders cancelled",
			},
			[]string{},
		),
		EventLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_loop_latency_seconds",
				Help:      "Event Loop per-event processing latency, by event kind",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"kind"},
		),

		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),

		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"breaker"},
		),
		CircuitBreakerTrips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"breaker"},
		),

		TicksIngestedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_ingested_total",
				Help:      "Total number of ticks enqueued onto the Event Loop",
			},
			[]string{"symbol"},
		),
		TicksCoalescedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_coalesced_total",
				Help:      "Total number of ticks dropped because a newer tick for the same symbol arrived first",
			},
			[]string{"symbol"},
		),
	}
}

// ObserveEventLatency implements internal/core/loop.Metrics.
func (m *TradingMetrics) ObserveEventLatency(kind string, d time.Duration) {
	m.EventLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// IncOrdersSubmitted implements internal/core/loop.Metrics.
func (m *TradingMetrics) IncOrdersSubmitted() {
	m.OrdersSubmittedTotal.WithLabelValues().Inc()
}

// IncOrdersFilled implements internal/core/loop.Metrics.
func (m *TradingMetrics) IncOrdersFilled() {
	m.OrdersFilledTotal.WithLabelValues().Inc()
}

// IncOrdersRejected implements internal/core/loop.Metrics.
func (m *TradingMetrics) IncOrdersRejected() {
	m.OrdersRejectedTotal.WithLabelValues().Inc()
}

// IncOrdersCancelled implements internal/core/loop.Metrics.
func (m *TradingMetrics) IncOrdersCancelled() {
	m.OrdersCancelledTotal.WithLabelValues().Inc()
}
