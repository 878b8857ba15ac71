// Package metrics exposes Prometheus collectors for the HTTP surface and the
// ledger's money-moving operations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wallet_ledger"

// Metrics owns a registry so tests and multiple servers never collide on
// the global default registerer.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	depositsInitiated prometheus.Counter
	settlements       *prometheus.CounterVec
	transfers         prometheus.Counter
	transferVolume    prometheus.Counter
	webhookEvents     *prometheus.CounterVec
	apiKeyAuth        *prometheus.CounterVec
	reconcileRuns     prometheus.Counter
	reconcileChecked  *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
		depositsInitiated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "deposits_initiated_total",
			Help:      "Pending deposits recorded.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "deposit_settlements_total",
			Help:      "Deposits moved to a terminal status.",
		}, []string{"status"}),
		transfers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transfers_total",
			Help:      "Committed wallet-to-wallet transfers.",
		}),
		transferVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transfer_volume_minor_total",
			Help:      "Sum of transferred amounts in minor units.",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Inbound gateway notifications by outcome.",
		}, []string{"outcome"}),
		apiKeyAuth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "authentications_total",
			Help:      "API key authentication attempts.",
		}, []string{"result"}),
		reconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "runs_total",
			Help:      "Reconciliation passes executed.",
		}),
		reconcileChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "deposits_total",
			Help:      "Stale deposits re-verified, by result.",
		}, []string{"result"}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.depositsInitiated,
		m.settlements,
		m.transfers,
		m.transferVolume,
		m.webhookEvents,
		m.apiKeyAuth,
		m.reconcileRuns,
		m.reconcileChecked,
		m.reconcileDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) DepositInitiated() {
	m.depositsInitiated.Inc()
}

func (m *Metrics) DepositSettled(status domain.TransactionStatus) {
	m.settlements.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) TransferCompleted(minor int64) {
	m.transfers.Inc()
	m.transferVolume.Add(float64(minor))
}

func (m *Metrics) WebhookHandled(outcome domain.WebhookOutcome) {
	m.webhookEvents.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) APIKeyAuthenticated(ok bool) {
	result := "rejected"
	if ok {
		result = "accepted"
	}
	m.apiKeyAuth.WithLabelValues(result).Inc()
}

// ReconcileCompleted records one reconciliation pass.
func (m *Metrics) ReconcileCompleted(report ports.ReconcileReport, d time.Duration) {
	m.reconcileRuns.Inc()
	m.reconcileChecked.WithLabelValues("settled").Add(float64(report.Settled))
	m.reconcileChecked.WithLabelValues("pending").Add(float64(report.Pending))
	m.reconcileChecked.WithLabelValues("error").Add(float64(report.Errors))
	m.reconcileDuration.Observe(d.Seconds())
}

var _ ports.LedgerMetrics = (*Metrics)(nil)
