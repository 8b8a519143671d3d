// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WagersTotal counts wagers recorded, partitioned by advisory flag.
	WagersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foldmarket_wagers_total",
		Help: "Total number of wagers recorded",
	}, []string{"flagged"})

	// WagerLatency tracks wager recording latency.
	WagerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "foldmarket_wager_latency_seconds",
		Help:    "Wager recording latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ManipulationFlags counts advisory manipulation flags by heuristic.
	ManipulationFlags = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foldmarket_manipulation_flags_total",
		Help: "Wagers flagged by manipulation heuristics",
	}, []string{"reason"})

	// ActiveMarkets tracks the number of markets held in the state cache.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foldmarket_active_markets",
		Help: "Number of markets in the state cache",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foldmarket_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foldmarket_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foldmarket_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route patterns are low-cardinality
		// enough for this API surface.
		path := r.URL.Path
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
