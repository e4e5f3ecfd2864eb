// Package metrics holds the service's Prometheus collectors. Every App owns
// its own registry so tests can build several apps in one process.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics for the registry service.
type Metrics struct {
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
}

// New creates a registry and registers all metrics on it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "people_registry_operations_total",
			Help: "Registry operations by name and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "people_registry_operation_duration_seconds",
			Help:    "Latency of registry operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "people_registry_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "people_registry_events_published_total",
			Help: "Ledger events handed to the broker, by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveOperation implements ports.OperationObserver.
func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveHTTP counts one served request. route is the matched gin pattern.
func (m *Metrics) ObserveHTTP(method, route string, status int) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// ObservePublish counts one event publish attempt.
func (m *Metrics) ObservePublish(err error) {
	if err != nil {
		m.EventsPublished.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.EventsPublished.WithLabelValues(OutcomeSuccess).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
