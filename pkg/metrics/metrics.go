// Package metrics exposes Prometheus counters for GUI commands and interactive dialogs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeIgnored = "ignored"
)

// Metrics holds the collectors of one device manager. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry     *prometheus.Registry
	commands     *prometheus.CounterVec
	interactions *prometheus.CounterVec
}

// New creates the collectors on a private registry. pending reports the number of running
// interactive commands.
func New(service string, pending func() int) *Metrics {
	labels := prometheus.Labels{"service": service}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "dm_commands_total",
			Help:        "GUI commands by verb and outcome.",
			ConstLabels: labels,
		}, []string{"verb", "outcome"}),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "dm_interactions_total",
			Help:        "Interactive prompts sent to the GUI by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.commands,
		m.interactions,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "dm_pending_conversations",
			Help:        "Interactive commands waiting for a result.",
			ConstLabels: labels,
		}, func() float64 {
			if pending == nil {
				return 0
			}
			return float64(pending())
		}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Command counts one handled command.
func (m *Metrics) Command(verb, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(verb, outcome).Inc()
}

// Interaction counts one prompt of the given kind.
func (m *Metrics) Interaction(kind string) {
	if m == nil {
		return
	}
	m.interactions.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
