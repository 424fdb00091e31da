package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPMetricsMiddleware wraps the API router's handlers to record
// Prometheus metrics. Labels by chi's matched route pattern
// (e.g. "/api/v1/orders/{orderId}") rather than the raw request path, so
// every order/position lookup by ID collapses into one series instead of
// one per order/symbol.
func HTTPMetricsMiddleware(metrics *TradingMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			statusStr := strconv.Itoa(wrapped.statusCode)
			route := routeLabel(r)

			metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				route,
				statusStr,
			).Inc()

			metrics.HTTPRequestDuration.WithLabelValues(
				r.Method,
				route,
			).Observe(duration)
		})
	}
}

// routeLabel prefers chi's matched route pattern over the raw path; it
// falls back to the raw path for requests chi never matched (404s).
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
