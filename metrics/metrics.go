// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons
const (
	ReasonMalformed   = "malformed"
	ReasonBusy        = "busy"
	ReasonNoCode      = "no_code"
	ReasonLanguage    = "language"
	ReasonRateLimited = "rate_limited"
)

var (
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codestream_active_sessions",
			Help: "Number of connected client sessions",
		},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codestream_active_runs",
			Help: "Number of live sandbox processes",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codestream_runs_total",
			Help: "Total number of finished runs by outcome",
		},
		[]string{"outcome"}, // success, error, terminated, timeout, disconnected, write_error, launch_error
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codestream_run_duration_seconds",
			Help:    "Wall-clock duration of sandbox runs",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codestream_messages_rejected_total",
			Help: "Inbound messages answered with an error notification",
		},
		[]string{"reason"},
	)

	InputDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codestream_input_dropped_total",
			Help: "Input lines dropped because no program could receive them",
		},
	)

	CleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codestream_cleanup_failures_total",
			Help: "Cleanups that could not kill a process or delete a workspace file",
		},
	)
)
