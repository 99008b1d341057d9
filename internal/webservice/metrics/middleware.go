// Package metrics instruments the HTTP handlers of the web service for Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type label string

// LabelPath is the context key holding the path label of a request.
const LabelPath label = "path"

// Middleware collects HTTP request metrics.
type Middleware struct {
	buckets  []float64
	registry prometheus.Registerer
}

// New creates a middleware registering its collectors against registry.
func New(registry prometheus.Registerer) *Middleware {
	return &Middleware{
		// Event handling includes object store and table store round trips. Max of 40.96s.
		buckets:  prometheus.ExponentialBuckets(0.01, 2, 13),
		registry: registry,
	}
}

// Monitor wraps handler to count, time and size the requests it serves.
// Every collector is labelled with handlerName, which must be unique per middleware.
func (m *Middleware) Monitor(handlerName string, handler http.Handler) http.HandlerFunc {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)
	labels := []string{"method", "code", string(LabelPath)}
	pathLabel := promhttp.WithLabelFromCtx(string(LabelPath), pathFromCtx)

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Tracks the number of HTTP requests.",
		}, labels,
	)
	requestDuration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Tracks the latencies for HTTP requests.",
			Buckets: m.buckets,
		}, labels,
	)
	requestSize := promauto.With(reg).NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "http_request_size_bytes",
			Help: "Tracks the size of HTTP requests.",
		}, labels,
	)

	return promhttp.InstrumentHandlerCounter(requestsTotal,
		promhttp.InstrumentHandlerDuration(requestDuration,
			promhttp.InstrumentHandlerRequestSize(requestSize, handler, pathLabel),
			pathLabel),
		pathLabel).ServeHTTP
}

func pathFromCtx(ctx context.Context) string {
	if path, ok := ctx.Value(LabelPath).(string); ok {
		return path
	}
	return "unknown"
}

// ApplyLabels stores the path label of r in its context.
// The request is modified in place so that the instrumentation wrapping the handler sees the label.
func ApplyLabels(r *http.Request) {
	ctx := context.WithValue(r.Context(), LabelPath, r.URL.Path)
	*r = *r.WithContext(ctx)
}

// HandlerApplyLabels applies the labels of every request before calling handler.
func HandlerApplyLabels(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ApplyLabels(r)
		handler.ServeHTTP(w, r)
	})
}
