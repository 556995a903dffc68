// Package metrics owns the Prometheus registry exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the coordinator's collectors.
type Registry struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	suggestions *prometheus.CounterVec
}

// NewRegistry creates a registry with the request and suggestion counters plus the Go runtime collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_http_requests_total",
		Help: "HTTP requests served, by method, route and status code.",
	}, []string{"method", "route", "status"})

	suggestions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_suggestions_total",
		Help: "Suggestion engine invocations, by outcome.",
	}, []string{"outcome"})

	reg.MustRegister(
		requests,
		suggestions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{registry: reg, requests: requests, suggestions: suggestions}
}

// ObserveRequest counts one served request.
func (r *Registry) ObserveRequest(method, route string, status int) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// ObserveSuggestion counts one suggestion outcome. It satisfies suggestion.Recorder.
func (r *Registry) ObserveSuggestion(outcome string) {
	if r == nil {
		return
	}
	r.suggestions.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
