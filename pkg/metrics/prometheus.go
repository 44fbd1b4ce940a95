// Package metrics holds the Prometheus collectors of the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutboxPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowrun_outbox_published_total",
			Help: "Total number of outbox entries published and deleted",
		},
	)

	OutboxFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowrun_outbox_failures_total",
			Help: "Total number of relay cycle failures by kind",
		},
		[]string{"kind"},
	)

	TriggerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowrun_trigger_events_total",
			Help: "Total number of trigger events by trigger type and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowrun_runs_total",
			Help: "Total number of finished runs by status",
		},
		[]string{"status"},
	)

	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowrun_actions_total",
			Help: "Total number of action invocations by type and outcome",
		},
		[]string{"action_type", "outcome"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowrun_action_duration_seconds",
			Help:    "Action invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"action_type"},
	)

	ExecutorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowrun_executor_errors_total",
			Help: "Total number of executor errors by kind",
		},
		[]string{"kind"},
	)

	SourceEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowrun_source_events_total",
			Help: "Total number of events emitted by trigger sources",
		},
		[]string{"source", "outcome"},
	)
)
