package render

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/domshift/mover"
)

// Metrics holds the render service collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	renders      *prometheus.CounterVec
	duration     prometheus.Histogram
	placements   prometheus.Counter
	events       *prometheus.CounterVec
	reloads      *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors, plus the Go and process ones.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domshift",
			Subsystem: "render",
			Name:      "renders_total",
			Help:      "Rendered widths by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "domshift",
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Time to render one width.",
			Buckets:   prometheus.DefBuckets,
		}),
		placements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "domshift",
			Subsystem: "render",
			Name:      "placements_total",
			Help:      "Elements placed across all renders.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domshift",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Engine events by type.",
		}, []string{"type"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domshift",
			Subsystem: "rules",
			Name:      "reloads_total",
			Help:      "Rule reloads by outcome.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domshift",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "domshift",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(
		m.renders, m.duration, m.placements, m.events, m.reloads,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) observeRender(err error, d time.Duration, placed int, events []mover.Event) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.renders.WithLabelValues(status).Inc()
	m.duration.Observe(d.Seconds())
	m.placements.Add(float64(placed))
	for _, ev := range events {
		m.events.WithLabelValues(string(ev.Type)).Inc()
	}
}

// ObserveReload counts a rule reload.
func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.reloads.WithLabelValues(status).Inc()
}

func (m *Metrics) observeHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, label).Inc()
	m.httpDuration.WithLabelValues(method, route, label).Observe(d.Seconds())
}
