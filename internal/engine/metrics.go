package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates run and task counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	tasksExecuted *prometheus.CounterVec
	tasksRetried  *prometheus.CounterVec
	tasksFailed   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
}

// NewMetrics registers the engine's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		tasksExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "tasks_executed_total",
			Help:      "Tasks that completed and merged successfully.",
		}, []string{"workflow", "task"}),
		tasksRetried: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "tasks_retried_total",
			Help:      "Task attempts beyond the first.",
		}, []string{"workflow", "task"}),
		tasksFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "tasks_failed_total",
			Help:      "Tasks that exhausted their attempt budget or failed fatally.",
		}, []string{"workflow", "task"}),
		runsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "runs_completed_total",
			Help:      "Workflow runs by terminal status.",
		}, []string{"workflow", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock workflow run duration.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"workflow"}),
	}
}

func (m *Metrics) taskExecuted(workflow, task string) {
	if m == nil {
		return
	}
	m.tasksExecuted.WithLabelValues(workflow, task).Inc()
}

func (m *Metrics) taskRetried(workflow, task string) {
	if m == nil {
		return
	}
	m.tasksRetried.WithLabelValues(workflow, task).Inc()
}

func (m *Metrics) taskFailed(workflow, task string) {
	if m == nil {
		return
	}
	m.tasksFailed.WithLabelValues(workflow, task).Inc()
}

func (m *Metrics) runCompleted(workflow, status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsCompleted.WithLabelValues(workflow, status).Inc()
	m.runDuration.WithLabelValues(workflow).Observe(seconds)
}
