package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	TaskReasonDeadlineExceeded     = "deadline_exceeded"
	TaskReasonDBLockTimeout        = "db_lock_timeout"
	TaskReasonSerializationFailure = "serialization_failure"
	TaskReasonUniqueViolation      = "unique_violation"
	TaskReasonUnknown              = "unknown"
)

const (
	LockModeAdvisory = "advisory"
	LockModeFile     = "file"
)

// MaintenanceMetrics captures maintenance run health signals.
type MaintenanceMetrics struct {
	runs             *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	taskTimeouts     *prometheus.CounterVec
	taskErrors       *prometheus.CounterVec
	recordsProcessed *prometheus.CounterVec
	runLoopLag       prometheus.Observer
	lockFailures     *prometheus.CounterVec
}

var (
	maintenanceMetricsOnce sync.Once
	maintenanceMetrics     *MaintenanceMetrics
)

// Maintenance returns the singleton maintenance metrics registry.
func Maintenance() *MaintenanceMetrics {
	return MaintenanceWithConfig(Config{})
}

// MaintenanceWithConfig returns the singleton maintenance metrics registry using config labels.
func MaintenanceWithConfig(cfg Config) *MaintenanceMetrics {
	maintenanceMetricsOnce.Do(func() {
		maintenanceMetrics = newMaintenanceMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return maintenanceMetrics
}

// ResetMaintenanceMetricsForTest resets the maintenance metrics singleton for tests.
func ResetMaintenanceMetricsForTest() {
	maintenanceMetricsOnce = sync.Once{}
	maintenanceMetrics = nil
}

func newMaintenanceMetrics(registerer prometheus.Registerer, cfg Config) *MaintenanceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	labels := constLabels(cfg)

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "parcelledger_maintenance_task_runs_total",
		Help:        "Maintenance task runs by name.",
		ConstLabels: labels,
	}, []string{"task"})
	taskDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "parcelledger_maintenance_task_duration_seconds",
		Help:        "Maintenance task latency to keep the nightly window predictable.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600, 1800},
		ConstLabels: labels,
	}, []string{"task"})
	taskTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "parcelledger_maintenance_task_timeouts_total",
		Help:        "Maintenance tasks cut off by their per-task deadline.",
		ConstLabels: labels,
	}, []string{"task"})
	taskErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "parcelledger_maintenance_task_errors_total",
		Help:        "Maintenance task errors by low-cardinality reason.",
		ConstLabels: labels,
	}, []string{"task", "reason"})
	recordsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "parcelledger_maintenance_records_processed_total",
		Help:        "Records touched per maintenance task and resource.",
		ConstLabels: labels,
	}, []string{"task", "resource"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "parcelledger_maintenance_runloop_lag_seconds",
		Help:        "Maintenance run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: labels,
	})
	lockFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "parcelledger_maintenance_lock_failures_total",
		Help:        "Global maintenance lock acquisition failures by mode.",
		ConstLabels: labels,
	}, []string{"mode"})

	registerer.MustRegister(
		runs,
		taskDuration,
		taskTimeouts,
		taskErrors,
		recordsProcessed,
		runLoopLag,
		lockFailures,
	)

	return &MaintenanceMetrics{
		runs:             runs,
		taskDuration:     taskDuration,
		taskTimeouts:     taskTimeouts,
		taskErrors:       taskErrors,
		recordsProcessed: recordsProcessed,
		runLoopLag:       runLoopLag,
		lockFailures:     lockFailures,
	}
}

// IncTaskRun increments the run counter for a maintenance task.
func (m *MaintenanceMetrics) IncTaskRun(task string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(task).Inc()
}

// ObserveTaskDuration records maintenance task latency in seconds.
func (m *MaintenanceMetrics) ObserveTaskDuration(task string, duration time.Duration) {
	if m == nil || m.taskDuration == nil {
		return
	}
	m.taskDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// IncTaskTimeout increments the timeout counter for a maintenance task.
func (m *MaintenanceMetrics) IncTaskTimeout(task string) {
	if m == nil || m.taskTimeouts == nil {
		return
	}
	m.taskTimeouts.WithLabelValues(task).Inc()
}

// IncTaskError increments the task error counter with classification.
func (m *MaintenanceMetrics) IncTaskError(task string, err error) {
	if m == nil || m.taskErrors == nil || err == nil {
		return
	}
	m.taskErrors.WithLabelValues(task, ClassifyTaskReason(err)).Inc()
}

// AddRecordsProcessed increments the processed counter for a resource by count.
func (m *MaintenanceMetrics) AddRecordsProcessed(task, resource string, count int) {
	if m == nil || m.recordsProcessed == nil || count <= 0 {
		return
	}
	m.recordsProcessed.WithLabelValues(task, resource).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *MaintenanceMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// IncLockFailure increments the lock failure counter for a lock mode.
func (m *MaintenanceMetrics) IncLockFailure(mode string) {
	if m == nil || m.lockFailures == nil {
		return
	}
	m.lockFailures.WithLabelValues(mode).Inc()
}

// ClassifyTaskReason maps maintenance task errors to low-cardinality reasons.
func ClassifyTaskReason(err error) string {
	if err == nil {
		return TaskReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return TaskReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return TaskReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return TaskReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return TaskReasonUniqueViolation
	}
	return TaskReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
