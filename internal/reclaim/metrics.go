// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package reclaim

import "github.com/prometheus/client_golang/prometheus"

// UnloadAttempts is the histogram of forced collections per unload.
// Use RegisterMetrics to register this with a Prometheus registry.
var UnloadAttempts = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "hotbridge_unload_attempts",
		Help:    "Forced collections needed to reclaim an unloading context",
		Buckets: []float64{0, 1, 2, 5, 10, 100, 1000, 5000, 10000},
	},
)

// Unloads is the counter of finished unload waits by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Unloads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hotbridge_unloads_total",
		Help: "Total number of context unloads by outcome",
	},
	[]string{"outcome"},
)

// RegisterMetrics registers reclaim metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(UnloadAttempts)
	reg.MustRegister(Unloads)
}

func recordWait(r Result) {
	UnloadAttempts.Observe(float64(r.Attempts))
	Unloads.WithLabelValues(r.Outcome).Inc()
}
