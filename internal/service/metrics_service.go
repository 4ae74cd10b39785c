package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/krs-api/internal/models"
)

// Transition results recorded on enrollment_transitions_total.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// MetricsService owns the Prometheus registry of the process.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	ledgerTx        *prometheus.HistogramVec
	violations      *prometheus.GaugeVec
}

// NewMetricsService registers the HTTP, cache and ledger collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cache_lookups_total",
			Help: "Catalog cache lookups by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_transitions_total",
			Help: "Enrollment ledger transitions by operation and result",
		}, []string{"operation", "result"}),
		ledgerTx: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_tx_duration_seconds",
			Help:    "Duration of ledger transactions",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		violations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_invariant_violations",
			Help: "Rows violating a ledger invariant at the last audit",
		}, []string{"invariant"}),
	}

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLookups, m.transitions, m.ledgerTx, m.violations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheLookup counts a catalog cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// RecordTransition counts one engine operation and times its transaction.
func (m *MetricsService) RecordTransition(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, result).Inc()
	m.ledgerTx.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetViolations publishes the violation counts of an audit pass.
func (m *MetricsService) SetViolations(report *models.LedgerAuditReport) {
	if m == nil || report == nil {
		return
	}
	m.violations.WithLabelValues(string(models.InvariantCreditCap)).Set(float64(len(report.CreditViolations)))
	m.violations.WithLabelValues(string(models.InvariantSeatCapacity)).Set(float64(len(report.SeatViolations)))
	m.violations.WithLabelValues(string(models.InvariantUniqueActive)).Set(float64(len(report.Duplicates)))
}
