// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package watch

import "github.com/prometheus/client_golang/prometheus"

// Reloads counts reloads triggered by file changes.
var Reloads = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "hotbridge_reloads_total",
	Help: "Total number of plugin reloads triggered by module file changes",
})

// RegisterMetrics registers the watch metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Reloads)
}
