// Package metrics exposes Prometheus metrics for the task engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/phrazzld/curation-engine/internal/task"
)

const namespace = "curation"

// Engine implements task.Observer and records admission outcomes.
type Engine struct {
	// Dispatch metrics
	TasksClaimed   *prometheus.CounterVec
	TasksFinished  *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	TicksSkipped   *prometheus.CounterVec
	TasksInFlight  *prometheus.GaugeVec
	LastFinishTime *prometheus.GaugeVec

	// Admission metrics
	TasksAdmitted *prometheus.CounterVec
	TasksRejected *prometheus.CounterVec
}

// Ensure Engine implements task.Observer interface
var _ task.Observer = (*Engine)(nil)

// New registers the engine metrics with reg.
func New(reg prometheus.Registerer) *Engine {
	factory := promauto.With(reg)
	return &Engine{
		TasksClaimed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_claimed_total",
			Help:      "Total number of tasks claimed for execution",
		}, []string{"kind", "worker"}),
		TasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of tasks finished, by result",
		}, []string{"kind", "worker", "result"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_processing_duration_seconds",
			Help:      "Time taken by a worker to process a task",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"kind", "worker"}),
		TicksSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatcher_ticks_skipped_total",
			Help:      "Ticks dropped because the previous tick was still running",
		}, []string{"kind"}),
		TasksInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Tasks claimed by a dispatcher and not yet finished",
		}, []string{"kind"}),
		LastFinishTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_task_finished_timestamp",
			Help:      "Timestamp of the last finished task",
		}, []string{"kind"}),
		TasksAdmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_admitted_total",
			Help:      "Total number of tasks accepted by admission",
		}, []string{"kind"}),
		TasksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_rejected_total",
			Help:      "Total number of admission requests rejected",
		}, []string{"kind"}),
	}
}

// TaskClaimed implements task.Observer.
func (m *Engine) TaskClaimed(kind task.Kind, workerName string) {
	m.TasksClaimed.WithLabelValues(string(kind), workerName).Inc()
	m.TasksInFlight.WithLabelValues(string(kind)).Inc()
}

// TaskFinished implements task.Observer.
func (m *Engine) TaskFinished(kind task.Kind, workerName string, ok bool, elapsed time.Duration) {
	result := "stopped"
	if ok {
		result = "completed"
	}
	m.TasksFinished.WithLabelValues(string(kind), workerName, result).Inc()
	m.TaskDuration.WithLabelValues(string(kind), workerName).Observe(elapsed.Seconds())
	m.TasksInFlight.WithLabelValues(string(kind)).Dec()
	m.LastFinishTime.WithLabelValues(string(kind)).SetToCurrentTime()
}

// TickSkipped implements task.Observer.
func (m *Engine) TickSkipped(kind task.Kind) {
	m.TicksSkipped.WithLabelValues(string(kind)).Inc()
}

// IncAdmitted counts an accepted admission request.
func (m *Engine) IncAdmitted(kind task.Kind) {
	m.TasksAdmitted.WithLabelValues(string(kind)).Inc()
}

// IncRejected counts a rejected admission request.
func (m *Engine) IncRejected(kind task.Kind) {
	m.TasksRejected.WithLabelValues(string(kind)).Inc()
}
