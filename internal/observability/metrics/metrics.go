// Package metrics exposes Prometheus instrumentation for the API: HTTP
// traffic, authorization decisions, media uploads, the upload circuit
// breaker and rate limiting.
package metrics

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"podcast-api/internal/media"
	"podcast-api/internal/policy"
)

const namespace = "podcasts"

// Recorder owns a private registry so tests and multiple servers in one
// process never collide on metric registration.
type Recorder struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	uploadDuration  *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
	rateLimited     *prometheus.CounterVec
	sessionPurges   *prometheus.CounterVec
}

var defaultRecorder = New()

// New constructs a Recorder with every collector registered, including the
// Go runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Authorization decisions by action, outcome and reason.",
		}, []string{"action", "decision", "reason"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_uploads_total",
			Help:      "Media uploads by kind and outcome.",
		}, []string{"kind", "outcome"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "media_upload_duration_seconds",
			Help:      "Duration of media uploads in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "media_breaker_state",
			Help:      "Upload circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"breaker"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter.",
		}, []string{"scope"}),
		sessionPurges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_purges_total",
			Help:      "Expired session purge runs by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests,
		r.requestDuration,
		r.decisions,
		r.uploads,
		r.uploadDuration,
		r.breakerState,
		r.rateLimited,
		r.sessionPurges,
	)
	return r
}

// Default returns the process-wide Recorder.
func Default() *Recorder {
	return defaultRecorder
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest records one HTTP request. route should be the matched route
// pattern; raw paths are normalized so ids do not explode label cardinality.
func (r *Recorder) ObserveRequest(method, route string, status int, duration time.Duration) {
	method = strings.ToUpper(method)
	route = normalizePath(route)
	r.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveDecision counts a policy decision.
func (r *Recorder) ObserveDecision(action policy.Action, decision policy.Decision) {
	outcome := "deny"
	if decision.Allowed {
		outcome = "allow"
	}
	r.decisions.WithLabelValues(action.String(), outcome, string(decision.Reason)).Inc()
}

// ObserveUpload counts a media upload and its latency.
func (r *Recorder) ObserveUpload(kind media.Kind, duration time.Duration, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, media.ErrUnavailable):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	r.uploads.WithLabelValues(string(kind), outcome).Inc()
	r.uploadDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// BreakerStateChange matches media.BreakerConfig.OnStateChange.
func (r *Recorder) BreakerStateChange(name, _, to string) {
	value := 0.0
	switch to {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	r.breakerState.WithLabelValues(name).Set(value)
}

// RateLimited counts a rejection by the limiter identified by scope.
func (r *Recorder) RateLimited(scope string) {
	r.rateLimited.WithLabelValues(normalizeName(scope)).Inc()
}

// SessionPurge counts one run of the expired session purge.
func (r *Recorder) SessionPurge(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.sessionPurges.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var idSegment = regexp.MustCompile(`^([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}|[0-9]+)$`)

// normalizePath replaces id-like segments with ":id". Route patterns pass
// through unchanged.
func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "unknown"
	}
	segments := strings.Split(trimmed, "/")
	for i, segment := range segments {
		if idSegment.MatchString(segment) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
