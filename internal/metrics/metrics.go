// Package metrics exposes the prometheus counters served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClockEvents counts appended attendance events by action (in/out).
	ClockEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeiterfassung_clock_events_total",
		Help: "Attendance events recorded, labelled by action.",
	}, []string{"action"})

	// Anomalies counts compensated missed scans by kind.
	Anomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeiterfassung_anomalies_total",
		Help: "Synthesized default-time entries, labelled by kind.",
	}, []string{"kind"})

	// CardScans counts card presentations by resolution result.
	CardScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeiterfassung_card_scans_total",
		Help: "Card scans processed, labelled by result.",
	}, []string{"result"})
)
