// Package observability wires the Prometheus registry, the HTTP metrics
// middleware and the business counters the domain services report into.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	approvalsTotal  *prometheus.CounterVec
	stockReversals  prometheus.Counter
	replaysTotal    prometheus.Counter
}

// NewMetrics initialises the registry and all metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saman_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saman_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	approvals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saman_approvals_total",
		Help: "Inventory transaction approvals by outcome.",
	}, []string{"outcome"})
	reversals := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "saman_stock_reversals_total",
		Help: "Order stock reversals applied.",
	})
	replays := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "saman_idempotent_replays_total",
		Help: "Responses served from the idempotency store.",
	})
	registry.MustRegister(requests, duration, approvals, reversals, replays)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		approvalsTotal:  approvals,
		stockReversals:  reversals,
		replaysTotal:    replays,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ApprovalResolved counts one resolved approval by outcome.
func (m *Metrics) ApprovalResolved(outcome string) {
	if m == nil {
		return
	}
	m.approvalsTotal.WithLabelValues(outcome).Inc()
}

// StockReversed counts one order stock reversal.
func (m *Metrics) StockReversed() {
	if m == nil {
		return
	}
	m.stockReversals.Inc()
}

// IdempotentReplay counts one replayed response.
func (m *Metrics) IdempotentReplay() {
	if m == nil {
		return
	}
	m.replaysTotal.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
