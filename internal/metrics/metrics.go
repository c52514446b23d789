/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tschaefer/filterctl/internal/backend"
	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

// Recorder keeps filter lifecycle metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	installed *prometheus.CounterVec
	removed   *prometheus.CounterVec
	failures  *prometheus.CounterVec
	rejected  prometheus.Counter
	active    prometheus.Gauge

	layers map[rule.FilterID]string
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		installed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filterctl_filters_installed_total",
			Help: "Filters installed, by layer and action",
		}, []string{"layer", "action"}),
		removed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filterctl_filters_removed_total",
			Help: "Filters removed, by layer",
		}, []string{"layer"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filterctl_filter_failures_total",
			Help: "Filters that could not be installed, by layer and reason",
		}, []string{"layer", "reason"}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "filterctl_rules_rejected_total",
			Help: "Rules skipped because they failed validation",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "filterctl_filters_active",
			Help: "Filters currently installed",
		}),
		layers: make(map[rule.FilterID]string),
	}
}

func (m *Recorder) Installed(r *rule.Rule, unit compiler.Unit, id rule.FilterID) {
	layer := unit.Layer.String()
	m.layers[id] = layer
	m.installed.WithLabelValues(layer, unit.Action.String()).Inc()
	m.active.Inc()
}

func (m *Recorder) Failed(r *rule.Rule, layer compiler.Layer, err error) {
	m.failures.WithLabelValues(layer.String(), backend.ReasonOf(err).String()).Inc()
}

func (m *Recorder) Rejected(r *rule.Rule, err error) {
	m.rejected.Inc()
}

func (m *Recorder) Removed(id rule.FilterID) {
	layer, ok := m.layers[id]
	if !ok {
		layer = compiler.LayerUnknown.String()
	}
	if ok {
		delete(m.layers, id)
		m.active.Dec()
	}
	m.removed.WithLabelValues(layer).Inc()
}

func (m *Recorder) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
