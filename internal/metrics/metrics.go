// Package metrics registers the server's Prometheus collectors.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lumenlib/lumen-server/internal/errors"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumen_http_requests_total",
			Help: "Total HTTP requests served.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lumen_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	libraryOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumen_library_operations_total",
			Help: "Dispatched library operations by payload type, action and result code.",
		},
		[]string{"type", "action", "result"},
	)

	activeLibraries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lumen_active_libraries",
		Help: "Library sessions currently active.",
	})

	eventStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lumen_event_streams",
		Help: "Server-sent event streams currently connected.",
	})
)

// ObserveOperation counts one dispatched operation. The result label is "ok" or
// the error code.
func ObserveOperation(typ, action string, err error) {
	result := "ok"
	if err != nil {
		result = string(errors.CodeOf(err))
	}
	libraryOperationsTotal.WithLabelValues(typ, action, result).Inc()
}

// SetActiveLibraries records the number of active sessions.
func SetActiveLibraries(n int) {
	activeLibraries.Set(float64(n))
}

// SetEventStreams records the number of connected event streams.
func SetEventStreams(n int) {
	eventStreams.Set(float64(n))
}

// Middleware records request counts and latency, labelled by chi route pattern
// so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack is asserted directly by the websocket upgrader.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return h.Hijack()
}
