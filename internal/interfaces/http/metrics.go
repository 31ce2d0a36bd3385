package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds the Prometheus metrics exported at /metrics.
type MetricsRegistry struct {
	registry *prometheus.Registry

	ScanDuration *prometheus.HistogramVec
	ScansTotal   *prometheus.CounterVec

	EvaluationsTotal *prometheus.CounterVec
	SkippedSymbols   *prometheus.CounterVec

	ProviderRequests *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetricsRegistry creates the registry and registers every metric on a
// private prometheus.Registry so tests can run side by side.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "equityrun_scan_duration_seconds",
				Help:    "Duration of full scan runs per market group",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"markets"},
		),
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_scans_total",
				Help: "Total scan runs by result",
			},
			[]string{"result"},
		),
		EvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_evaluations_total",
				Help: "Evaluated symbols by market and resulting tier",
			},
			[]string{"market", "tier"},
		),
		SkippedSymbols: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_skipped_symbols_total",
				Help: "Symbols that could not be scored, by market",
			},
			[]string{"market"},
		),
		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_provider_requests_total",
				Help: "Upstream data provider requests by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_http_requests_total",
				Help: "Dashboard HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "equityrun_http_request_duration_seconds",
				Help:    "Dashboard HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	m.registry.MustRegister(
		m.ScanDuration, m.ScansTotal,
		m.EvaluationsTotal, m.SkippedSymbols,
		m.ProviderRequests,
		m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Handler returns the /metrics endpoint for this registry.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScan records one scan run's outcome.
func (m *MetricsRegistry) ObserveScan(markets string, d time.Duration, err error) {
	m.ScanDuration.WithLabelValues(markets).Observe(d.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ScansTotal.WithLabelValues(result).Inc()
}
