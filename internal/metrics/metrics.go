// Package metrics provides Prometheus instrumentation for the pricing engine.
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
	// PriceEvaluations counts repricing ticks by outcome
	// ("changed", "unchanged", "error").
	PriceEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dynamicmart_price_evaluations_total",
		Help: "Total number of price evaluations",
	}, []string{"outcome"})

	// PriceChanges counts applied price changes by direction.
	PriceChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dynamicmart_price_changes_total",
		Help: "Total number of applied price changes",
	}, []string{"direction"})

	// CurrentPrice tracks each product's live price.
	CurrentPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dynamicmart_current_price",
		Help: "Current price per product",
	}, []string{"product_id"})

	// EvaluationLatency tracks how long one repricing tick takes.
	EvaluationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dynamicmart_price_evaluation_seconds",
		Help:    "Price evaluation latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// ScheduledProducts tracks the number of products with a live repricing task.
	ScheduledProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dynamicmart_scheduled_products",
		Help: "Number of products with an active repricing schedule",
	})

	// CartOperations counts cart mutations by operation and result.
	CartOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dynamicmart_cart_operations_total",
		Help: "Total cart operations",
	}, []string{"op", "result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dynamicmart_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dynamicmart_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dynamicmart_http_request_duration_seconds",
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

		// Label by route pattern, not raw path, to keep product and cart
		// IDs out of the label set.
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

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
