// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Quote outcomes recorded per method.
const (
	OutcomePriced      = "priced"
	OutcomeFree        = "free"
	OutcomeUnavailable = "unavailable"
)

// RouteUnmatched labels requests that matched no route.
const RouteUnmatched = "unmatched"

// Registry holds the collectors. Each server gets its own so tests can build
// several without duplicate registration panics.
type Registry struct {
	reg             *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	quotesTotal     *prometheus.CounterVec
	feedSyncs       *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		quotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipping_quotes_total",
			Help: "Per-method quote outcomes",
		}, []string{"method", "outcome"}),
		feedSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carrier_feed_syncs_total",
			Help: "Carrier feed synchronizations by result",
		}, []string{"result"}),
	}
	r.reg.MustRegister(r.requestsTotal, r.requestDuration, r.quotesTotal, r.feedSyncs)
	return r
}

// ObserveQuote counts one method outcome. A nil registry is a no-op.
func (r *Registry) ObserveQuote(method, outcome string) {
	if r == nil {
		return
	}
	r.quotesTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveFeedSync counts a feed synchronization attempt.
func (r *Registry) ObserveFeedSync(ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.feedSyncs.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies labelled by the chi route
// pattern to keep cardinality low.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		// raw paths would give every 404 its own series
		route := RouteUnmatched
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": req.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		r.requestsTotal.With(labels).Inc()
		r.requestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
