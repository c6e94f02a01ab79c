// Package metrics exposes run progress as Prometheus metrics. Usernames are
// never used as label values.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "burstline"

// Metrics owns a private registry so tests and embedded runs never collide
// with the default one.
type Metrics struct {
	Registry *prometheus.Registry

	searches     *prometheus.CounterVec
	cooldowns    *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	taskFailures *prometheus.CounterVec
	running      *prometheus.GaugeVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Search queries submitted, by stage.",
		}, []string{"stage"}),
		cooldowns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldowns_total",
			Help:      "Cooldown pauses taken, by stage.",
		}, []string{"stage"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identity_task_duration_seconds",
			Help:      "Wall time of one identity's task within a stage.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"stage", "outcome"}),
		taskFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_task_failures_total",
			Help:      "Identity tasks that ended in error, by stage.",
		}, []string{"stage"}),
		running: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identity_tasks_running",
			Help:      "Identity tasks currently in progress, by stage.",
		}, []string{"stage"}),
	}
}

// SearchSubmitted counts one search.
func (m *Metrics) SearchSubmitted(_, stage string) {
	m.searches.WithLabelValues(stage).Inc()
}

// CooldownStarted counts one cooldown.
func (m *Metrics) CooldownStarted(_, stage string, _ time.Duration) {
	m.cooldowns.WithLabelValues(stage).Inc()
}

// TaskStarted marks an identity task as running.
func (m *Metrics) TaskStarted(stage string) {
	m.running.WithLabelValues(stage).Inc()
}

// TaskFinished records the duration and outcome of an identity task.
func (m *Metrics) TaskFinished(stage string, d time.Duration, err error) {
	m.running.WithLabelValues(stage).Dec()
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.taskFailures.WithLabelValues(stage).Inc()
	}
	m.taskDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}
