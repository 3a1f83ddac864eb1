// Package metrics provides Prometheus instrumentation for the vault engine.
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
	// QuotesTotal counts pre-transaction quotes, partitioned by operation and
	// outcome (ok, rejected, stale_price).
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_engine_quotes_total",
		Help: "Total number of vault and pool quotes",
	}, []string{"op", "outcome"})

	// PriceUpdates counts accepted oracle price updates per token.
	PriceUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_engine_price_updates_total",
		Help: "Accepted collateral price updates",
	}, []string{"token"})

	// ScanDuration tracks how long a post-update health scan takes.
	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vault_engine_health_scan_duration_seconds",
		Help:    "Vault health scan duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"token"})

	// VaultsByHealth is the vault count per health level after the latest
	// scan of each token.
	VaultsByHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vault_engine_vaults",
		Help: "Vaults per collateral token and health level at the last scan",
	}, []string{"token", "health"})

	// AlertsTotal counts alerts published, by health level.
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_engine_alerts_total",
		Help: "Vault risk alerts published",
	}, []string{"health"})

	// CeilingRejections counts mints rejected by a debt ceiling.
	CeilingRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_engine_debt_ceiling_rejections_total",
		Help: "Mint quotes rejected by a debt ceiling",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_engine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_engine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vault_engine_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
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

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
