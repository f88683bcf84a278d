// Package metrics exposes the router's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the router's collectors on a private registry so
// tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	DownstreamLatency *prometheus.HistogramVec
	FilterRejections  *prometheus.CounterVec
	ConfigRefreshes   *prometheus.CounterVec
	DomainFetches     *prometheus.CounterVec
}

// New creates the router collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archura",
			Subsystem: "router",
			Name:      "requests_total",
			Help:      "Requests by domain and pipeline outcome.",
		}, []string{"domain", "outcome"}),
		DownstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "archura",
			Subsystem: "router",
			Name:      "downstream_duration_seconds",
			Help:      "Downstream call latency by domain.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"domain"}),
		FilterRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archura",
			Subsystem: "router",
			Name:      "filter_rejections_total",
			Help:      "Requests rejected by a filter, by filter name.",
		}, []string{"filter"}),
		ConfigRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archura",
			Subsystem: "router",
			Name:      "config_refreshes_total",
			Help:      "Global configuration fetch attempts by result.",
		}, []string{"result"}),
		DomainFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archura",
			Subsystem: "router",
			Name:      "domain_fetches_total",
			Help:      "Lazy per-domain configuration fetches by result.",
		}, []string{"result"}),
	}
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
