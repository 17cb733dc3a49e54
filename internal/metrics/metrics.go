// Package metrics exposes Prometheus counters for page views, reveals and actions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resume"

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	ViewsOpened  prometheus.Counter
	ViewsClosed  *prometheus.CounterVec
	ViewsActive  prometheus.Gauge
	Reveals      *prometheus.CounterVec
	FailOpen     prometheus.Counter
	Actions      *prometheus.CounterVec
	Exports      *prometheus.CounterVec
	ExportTiming prometheus.Histogram
}

// New registers collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		ViewsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "views_opened_total",
			Help:      "Page views opened",
		}),
		ViewsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "views_closed_total",
			Help:      "Page views torn down, by reason",
		}, []string{"reason"}),
		ViewsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "views_active",
			Help:      "Page views currently tracked",
		}),
		Reveals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_revealed_total",
			Help:      "Regions revealed, by region id",
		}, []string{"region"}),
		FailOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "views_fail_open_total",
			Help:      "Views started without an observation capability",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Page actions, by action and outcome",
		}, []string{"action", "outcome"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Document exports, by outcome",
		}, []string{"outcome"}),
		ExportTiming: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Time to export the document",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
	reg.MustRegister(m.ViewsOpened, m.ViewsClosed, m.ViewsActive, m.Reveals,
		m.FailOpen, m.Actions, m.Exports, m.ExportTiming)
	return m
}

// Registry returns the underlying registry, for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
