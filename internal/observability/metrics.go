// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"options-spread-lab/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Backtest metrics
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	DaysProcessed    *prometheus.CounterVec
	TradeFailures    *prometheus.CounterVec
	LegExits         *prometheus.CounterVec
	TradePnL         prometheus.Histogram
	ReportsGenerated prometheus.Counter

	// Market data metrics
	ProviderQueryDuration *prometheus.HistogramVec
	ProviderQueryErrors   *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Stream metrics
	StreamClients  prometheus.Gauge
	StreamMessages prometheus.Counter

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "options_spread_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Backtest metrics
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		DaysProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "days_processed_total",
			Help:      "Total number of trading days simulated by trade status",
		}, []string{"status"}),
		TradeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trade_failures_total",
			Help:      "Total number of FAILED trades by failure kind",
		}, []string{"kind"}),
		LegExits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "leg_exits_total",
			Help:      "Total number of leg exits by role and reason",
		}, []string{"role", "reason"}),
		TradePnL: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trade_realized_pnl",
			Help:      "Realized PnL of CLOSED trades",
			Buckets:   []float64{-500, -200, -100, -50, -20, -10, 0, 10, 20, 50, 100, 200, 500},
		}),
		ReportsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		// Market data metrics
		ProviderQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "market_data",
			Name:      "query_duration_seconds",
			Help:      "Market data query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "operation"}),
		ProviderQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market_data",
			Name:      "query_errors_total",
			Help:      "Total number of market data query errors",
		}, []string{"source", "operation"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Stream metrics
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Number of connected trade stream clients",
		}),
		StreamMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Total number of trade records broadcast",
		}),

		// Health metrics
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful backtest run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordTrade records one simulated day.
func (m *Metrics) RecordTrade(t *domain.Trade) {
	m.DaysProcessed.WithLabelValues(string(t.Status)).Inc()
	if t.Failed() {
		m.TradeFailures.WithLabelValues(string(t.FailureKind)).Inc()
	} else {
		m.TradePnL.Observe(t.RealizedPnL)
	}
	for _, leg := range []*domain.Leg{t.Main, t.Hedge} {
		if leg != nil && leg.ExitReason != "" {
			m.LegExits.WithLabelValues(string(leg.Role), string(leg.ExitReason)).Inc()
		}
	}
}

// RecordRun records a finished backtest run.
func (m *Metrics) RecordRun(status string, durationSeconds float64, finishedUnix int64) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(durationSeconds)
	if status == StatusSuccess {
		m.LastSuccessfulRun.Set(float64(finishedUnix))
	}
}

// Run status labels
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RecordProviderQuery records market data query metrics.
func RecordProviderQuery(source, operation string, seconds float64, err error) {
	DefaultMetrics.ProviderQueryDuration.WithLabelValues(source, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.ProviderQueryErrors.WithLabelValues(source, operation).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordReportGenerated increments the reports counter.
func RecordReportGenerated() {
	DefaultMetrics.ReportsGenerated.Inc()
}
