// Package metrics exposes submission and oracle counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	oracle      *prometheus.HistogramVec
	hazards     *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gptr_submissions_total",
			Help: "Submissions by kind, outcome and reason.",
		}, []string{"kind", "outcome", "reason"}),
		oracle: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gptr_oracle_duration_seconds",
			Help:    "Forensics oracle round trips by verb and result.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}, []string{"verb", "result"}),
		hazards: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gptr_hazards",
			Help: "Hazards per lifecycle phase at the last stats read.",
		}, []string{"phase"}),
	}
	m.registry.MustRegister(
		m.submissions,
		m.oracle,
		m.hazards,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveSubmission(kind, outcome, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.submissions.WithLabelValues(kind, outcome, reason).Inc()
}

func (m *Metrics) ObserveOracle(verb, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.oracle.WithLabelValues(verb, result).Observe(d.Seconds())
}

func (m *Metrics) SetHazardCount(phase string, n int) {
	if m == nil {
		return
	}
	m.hazards.WithLabelValues(phase).Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
