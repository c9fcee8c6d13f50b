package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus collectors for the decision service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	decisionsTotal    *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	resolverDuration  prometheus.Histogram
	auditEmitFailures prometheus.Counter
}

// NewMetrics initialises the registry and collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authcore_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_decisions_total",
		Help: "Authorization decisions by outcome and reason.",
	}, []string{"outcome", "reason"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_decision_cache_lookups_total",
		Help: "Decision cache lookups by result.",
	}, []string{"result"})
	resolverDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "authcore_ownership_resolution_duration_seconds",
		Help:    "Ownership resolution round trip duration.",
		Buckets: prometheus.DefBuckets,
	})
	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_audit_emit_failures_total",
		Help: "Audit events that could not be handed to the sink.",
	})
	registry.MustRegister(requests, duration, decisions, cacheLookups, resolverDuration, auditFailures)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		decisionsTotal:    decisions,
		cacheLookups:      cacheLookups,
		resolverDuration:  resolverDuration,
		auditEmitFailures: auditFailures,
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

// ObserveDecision counts one finished authorization decision.
func (m *Metrics) ObserveDecision(allowed bool, reason string) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.decisionsTotal.WithLabelValues(outcome, reason).Inc()
}

// ObserveCacheLookup counts a decision cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveResolution records one ownership resolution round trip.
func (m *Metrics) ObserveResolution(d time.Duration) {
	if m == nil {
		return
	}
	m.resolverDuration.Observe(d.Seconds())
}

// ObserveAuditEmitFailure counts a dropped audit event.
func (m *Metrics) ObserveAuditEmitFailure() {
	if m == nil {
		return
	}
	m.auditEmitFailures.Inc()
}

// Registerer exposes the registry for custom collectors.
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
