// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hotbridge/hotbridge/internal/command"
	"github.com/hotbridge/hotbridge/internal/reclaim"
)

// Outcome constants for command metrics.
const (
	OutcomeOK      = "ok"
	OutcomeFault   = "fault"
	OutcomeIgnored = "ignored"
)

// Commands is the counter for dispatched commands.
// Use RegisterMetrics to register this with a Prometheus registry.
var Commands = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hotbridge_commands_total",
		Help: "Total number of host commands dispatched",
	},
	[]string{"command", "outcome"},
)

// PluginLoaded reports whether a plugin is loaded.
// Use RegisterMetrics to register this with a Prometheus registry.
var PluginLoaded = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "hotbridge_plugin_loaded",
		Help: "Whether a plugin is currently loaded (1) or not (0)",
	},
)

// RegisterMetrics registers bridge and reclaim metrics with the given
// Prometheus registry. Panics if registration fails (following prometheus
// convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Commands)
	reg.MustRegister(PluginLoaded)
	reclaim.RegisterMetrics(reg)
}

func recordCommand(tag command.Tag, outcome string) {
	Commands.WithLabelValues(tag.String(), outcome).Inc()
}

func pluginLoaded(loaded bool) {
	if loaded {
		PluginLoaded.Set(1)
		return
	}
	PluginLoaded.Set(0)
}
