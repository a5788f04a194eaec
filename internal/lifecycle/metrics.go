// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package lifecycle

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the plugin lifecycle Prometheus instruments.
type Metrics struct {
	Loads        prometheus.Counter
	LoadFailures prometheus.Counter
	Unloads      prometheus.Counter
	HotSwaps     prometheus.Counter
	Active       prometheus.Gauge
}

// NewMetrics creates and registers the lifecycle metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Loads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugmesh_plugin_loads_total",
			Help: "Total number of successful plugin loads",
		}),
		LoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugmesh_plugin_load_failures_total",
			Help: "Total number of failed plugin loads",
		}),
		Unloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugmesh_plugin_unloads_total",
			Help: "Total number of plugin unloads",
		}),
		HotSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugmesh_plugin_hot_swaps_total",
			Help: "Total number of hot swaps of live plugins",
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plugmesh_plugins_active",
			Help: "Number of currently loaded plugins",
		}),
	}
	reg.MustRegister(m.Loads, m.LoadFailures, m.Unloads, m.HotSwaps, m.Active)
	return m
}

// nopMetrics backs managers constructed without a registerer.
func nopMetrics() *Metrics {
	return &Metrics{
		Loads:        prometheus.NewCounter(prometheus.CounterOpts{Name: "plugmesh_nop_loads"}),
		LoadFailures: prometheus.NewCounter(prometheus.CounterOpts{Name: "plugmesh_nop_load_failures"}),
		Unloads:      prometheus.NewCounter(prometheus.CounterOpts{Name: "plugmesh_nop_unloads"}),
		HotSwaps:     prometheus.NewCounter(prometheus.CounterOpts{Name: "plugmesh_nop_hot_swaps"}),
		Active:       prometheus.NewGauge(prometheus.GaugeOpts{Name: "plugmesh_nop_active"}),
	}
}
