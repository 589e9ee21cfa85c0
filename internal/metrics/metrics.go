// Package metrics provides Prometheus instrumentation for the back office.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SettlementsComputed counts settlement computations, partitioned by kind.
	SettlementsComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_settlements_computed_total",
		Help: "Total number of settlement computations",
	}, []string{"kind"})

	// SettlementComputeLatency tracks settlement computation latency.
	SettlementComputeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backoffice_settlement_compute_seconds",
		Help:    "Settlement computation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SettlementTransitions counts status transitions by action.
	SettlementTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_settlement_transitions_total",
		Help: "Settlement status transitions",
	}, []string{"action"})

	// ConcurrencyConflicts counts writes rejected for a stale version.
	ConcurrencyConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_concurrency_conflicts_total",
		Help: "Settlement writes rejected by the version check",
	})

	// RiskRecalcLatency tracks full risk snapshot recalculation by method.
	RiskRecalcLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_risk_recalc_seconds",
		Help:    "Risk snapshot recalculation latency in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method"})

	// PortfolioVaR is the latest portfolio VaR by confidence level.
	PortfolioVaR = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backoffice_portfolio_var",
		Help: "Latest portfolio value-at-risk in settlement currency",
	}, []string{"confidence"})

	// OpenPositions tracks the number of non-flat net positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backoffice_open_positions",
		Help: "Number of non-flat net positions at last netting run",
	})

	// LimitBreaches counts exposure limit breaches found during risk runs.
	LimitBreaches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_limit_breaches_total",
		Help: "Exposure limit breaches detected",
	}, []string{"kind"})

	// PriceQuotesImported counts quotes written by imports.
	PriceQuotesImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_price_quotes_imported_total",
		Help: "Benchmark price quotes imported",
	})

	// SnapshotsArchived counts archive uploads by result.
	SnapshotsArchived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_snapshots_archived_total",
		Help: "Risk snapshots written to object storage",
	}, []string{"result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backoffice_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern, not the raw path, keeps settlement IDs out of labels.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
