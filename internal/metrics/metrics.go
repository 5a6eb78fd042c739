// Package metrics exposes daemon counters in the Prometheus text format.
//
// Engine, hotkey and sink counters live in their own packages as atomics;
// the collector here reads them at scrape time so the mapping loop never
// touches a Prometheus type. Switches and keyboard presence are recorded
// directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"analogpad/internal/hotkey"
	"analogpad/internal/mapping"
)

// Namespace prefixes every metric name.
const Namespace = "analogpad"

// Sources supplies the values read on every scrape. Nil fields are skipped.
type Sources struct {
	Engine        func() mapping.Metrics
	Hotkeys       func() hotkey.Stats
	SinkErrors    func() uint64
	NotifyDropped func() uint64
}

// Metrics owns a private registry with the daemon collectors.
type Metrics struct {
	registry *prometheus.Registry

	switches          *prometheus.CounterVec
	keyboardConnected prometheus.Gauge
	reloads           *prometheus.CounterVec
}

// New builds the registry. Go runtime and process collectors are included.
func New(src Sources) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		switches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "profile_switches_total",
			Help:      "Profile and sub-profile switches by hotkey action.",
		}, []string{"action"}),
		keyboardConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "keyboard_connected",
			Help:      "1 while an analog keyboard is connected.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newCollector(src),
		m.switches,
		m.keyboardConnected,
		m.reloads,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSwitch counts a switch performed for action ("switch" or "cycle").
func (m *Metrics) RecordSwitch(action string) {
	m.switches.WithLabelValues(action).Inc()
}

// SetKeyboardConnected records analog keyboard presence.
func (m *Metrics) SetKeyboardConnected(connected bool) {
	if connected {
		m.keyboardConnected.Set(1)
	} else {
		m.keyboardConnected.Set(0)
	}
}

// RecordReload counts a configuration reload.
func (m *Metrics) RecordReload(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reloads.WithLabelValues(result).Inc()
}
