// Package metrics provides Prometheus instrumentation for the computation engine.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsSubmitted counts computations queued, partitioned by circuit.
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_jobs_submitted_total",
		Help: "Total number of computations queued",
	}, []string{"circuit"})

	// SubmitRejections counts submissions refused before queueing.
	SubmitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_submit_rejections_total",
		Help: "Submissions rejected before queueing, by error kind",
	}, []string{"kind"})

	// CallbacksTotal counts accepted callbacks by outcome (success, aborted).
	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_callbacks_total",
		Help: "Total accepted callbacks",
	}, []string{"circuit", "outcome"})

	// CallbackRejections counts callbacks refused by the dispatcher.
	CallbackRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_callback_rejections_total",
		Help: "Callbacks rejected by the dispatcher, by error kind",
	}, []string{"kind"})

	// JobDuration tracks time from queueing to terminal state.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_job_duration_seconds",
		Help:    "Time from queueing to terminal state in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"circuit"})

	// PendingJobs tracks non-terminal jobs, refreshed by the monitor.
	PendingJobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentinel_pending_jobs",
		Help: "Number of queued or executing jobs",
	}, []string{"state"})

	// EventsPublished counts events handed to the sink.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_events_published_total",
		Help: "Events emitted by completed jobs",
	}, []string{"kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_http_request_duration_seconds",
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

		// Route pattern keeps job keys out of the label set.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
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

// Hijack lets the WebSocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", w.ResponseWriter)
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		w.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
