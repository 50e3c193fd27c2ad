package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RuleExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_rule_executions_total",
		Help: "Total number of rule executions, labelled by trigger type and outcome status.",
	}, []string{"trigger_type", "status"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_actions_executed_total",
		Help: "Total number of actions executed, labelled by type and status.",
	}, []string{"action_type", "status"})

	ExecutionsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_executions_dropped_total",
		Help: "Total number of executions rejected due to a full dispatch queue.",
	})

	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_scheduler_ticks_total",
		Help: "Total number of scheduler polling ticks.",
	})

	SchedulerMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_scheduler_matches_total",
		Help: "Total number of rule/event matches produced by the scheduler.",
	})

	SchedulerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_scheduler_errors_total",
		Help: "Total number of scheduler evaluation cycles that failed after retries.",
	})

	AuditEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_audit_entries_evicted_total",
		Help: "Total number of audit entries removed by retention enforcement.",
	})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "automation_rule_execution_duration_ms",
		Help:    "End-to-end rule execution latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "automation_queue_utilization_ratio",
		Help: "Current execution dispatch queue utilization (0–1).",
	})
)
