package maintenance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	billingdomain "github.com/landgov/parcelledger/internal/billing/domain"
	"github.com/landgov/parcelledger/internal/clock"
	"github.com/landgov/parcelledger/internal/config"
	"github.com/landgov/parcelledger/internal/maintenance/lock"
	obsmetrics "github.com/landgov/parcelledger/internal/observability/metrics"
	"github.com/landgov/parcelledger/internal/penalty"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrAlreadyRunning means a maintenance run is in flight in this process.
var ErrAlreadyRunning = errors.New("maintenance_already_running")

// TaskResult is the outcome of one maintenance task within a run.
type TaskResult struct {
	Task      string        `json:"task"`
	Duration  time.Duration `json:"duration"`
	Processed int64         `json:"processed"`
	Error     string        `json:"error,omitempty"`
}

// RunReport summarizes one full maintenance run. Task failures are
// recorded here rather than aborting the run, so a broken task never
// starves the ones after it.
type RunReport struct {
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	LockMode   string       `json:"lockMode"`
	Results    []TaskResult `json:"results"`
}

func (r RunReport) Failed() bool {
	for _, res := range r.Results {
		if res.Error != "" {
			return true
		}
	}
	return false
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Tuning    *config.MaintenanceTuningHolder
	Clock     clock.Clock
	BillRepo  billingdomain.BillRepository
	OrderRepo billingdomain.OrderRepository
	Penalty   *penalty.Calculator
}

// Scheduler drives the periodic ledger maintenance run: overdue
// transitions, penalty refresh, order expiry and order recalculation.
type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       config.Config
	tuning    *config.MaintenanceTuningHolder
	clock     clock.Clock
	billRepo  billingdomain.BillRepository
	orderRepo billingdomain.OrderRepository
	penalty   *penalty.Calculator
	lock      *lock.GlobalLock

	running atomic.Bool

	mu      sync.Mutex
	history []RunReport
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("maintenance").With(zap.String("component", "maintenance")),
		cfg:       p.Config,
		tuning:    p.Tuning,
		clock:     p.Clock,
		billRepo:  p.BillRepo,
		orderRepo: p.OrderRepo,
		penalty:   p.Penalty,
		lock:      lock.New(p.DB, p.Log, p.Config.MaintenanceLockName, p.Config.MaintenanceLockFile),
	}
}

// Run executes one full maintenance pass. At most one run per process;
// a second caller gets ErrAlreadyRunning. Across processes the global
// lock arbitrates, and without MAINTENANCE_REQUIRE_LOCK a lock failure
// degrades to a warning instead of skipping the run.
func (s *Scheduler) Run(ctx context.Context) (*RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer s.running.Store(false)
	return s.run(ctx)
}

// RunAsync claims the single-flight slot and runs maintenance in the
// background. ErrAlreadyRunning when a run is in flight; the outcome
// lands in History.
func (s *Scheduler) RunAsync() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	go func() {
		defer s.running.Store(false)
		if _, err := s.run(context.Background()); err != nil {
			s.log.Warn("maintenance run skipped", zap.Error(err))
		}
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{StartedAt: s.clock.Now(), LockMode: lock.ModeNone}

	mode, err := s.lock.Acquire(ctx)
	if err != nil {
		obsmetrics.Maintenance().IncLockFailure(mode)
		if s.cfg.MaintenanceRequireLock {
			s.log.Error("maintenance lock unavailable, skipping run", zap.Error(err))
			return nil, err
		}
		s.log.Warn("maintenance lock unavailable, proceeding without it", zap.Error(err))
	} else {
		report.LockMode = mode
		defer s.lock.Release(ctx)
	}

	tasks := []struct {
		Name string
		Run  func(ctx context.Context) (int64, error)
	}{
		{"overdue_transition", s.overdueTransitionTask},
		{"penalty_refresh", s.penaltyRefreshTask},
		{"order_expiry", s.orderExpiryTask},
		{"order_recalculation", s.orderRecalculationTask},
	}

	for _, task := range tasks {
		report.Results = append(report.Results, s.runTask(ctx, task.Name, task.Run))
	}

	report.FinishedAt = s.clock.Now()
	s.appendHistory(*report)

	failed := 0
	for _, res := range report.Results {
		if res.Error != "" {
			failed++
		}
	}
	fields := []zap.Field{
		zap.String("lock_mode", report.LockMode),
		zap.Int64("duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds()),
		zap.Int("tasks_succeeded", len(report.Results)-failed),
		zap.Int("tasks_failed", failed),
	}
	if report.Failed() {
		s.log.Warn("maintenance run finished with failures", fields...)
	} else {
		s.log.Info("maintenance run finished", fields...)
	}
	return report, nil
}

// runTask wraps one task with its deadline and metrics. Errors are
// captured in the result, never propagated, so later tasks still run.
func (s *Scheduler) runTask(parent context.Context, name string, fn func(ctx context.Context) (int64, error)) TaskResult {
	timeout := s.tuning.Get().TaskTimeout()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	maintMetrics := obsmetrics.Maintenance()
	maintMetrics.IncTaskRun(name)
	start := time.Now()

	processed, err := fn(ctx)
	duration := time.Since(start)
	maintMetrics.ObserveTaskDuration(name, duration)

	result := TaskResult{Task: name, Duration: duration, Processed: processed}
	if err == nil {
		s.log.Info("maintenance.task.finish",
			zap.String("task", name),
			zap.Int64("processed", processed),
			zap.Int64("duration_ms", duration.Milliseconds()),
		)
		return result
	}

	result.Error = err.Error()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		maintMetrics.IncTaskTimeout(name)
		s.log.Warn("maintenance task timed out",
			zap.String("task", name),
			zap.Duration("timeout", timeout),
			zap.Int64("processed", processed),
			zap.Error(err),
		)
	} else {
		s.log.Error("maintenance task failed",
			zap.String("task", name),
			zap.Int64("processed", processed),
			zap.Error(err),
		)
	}
	maintMetrics.IncTaskError(name, err)
	return result
}

// RunForever runs maintenance on the configured interval until ctx ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.tuning.Get().RunInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(interval)

	for {
		if lag := time.Since(nextRun); lag > 0 {
			obsmetrics.Maintenance().ObserveRunLoopLag(lag)
		}
		if _, err := s.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.log.Warn("maintenance run skipped", zap.Error(err))
		}

		// Pick up tuning changes between runs.
		if next := s.tuning.Get().RunInterval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
		nextRun = nextRun.Add(interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// History returns the most recent run reports, newest first.
func (s *Scheduler) History() []RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunReport, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Scheduler) appendHistory(report RunReport) {
	limit := s.tuning.Get().RunReportHistoryLen
	if limit <= 0 {
		limit = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]RunReport{report}, s.history...)
	if len(s.history) > limit {
		s.history = s.history[:limit]
	}
}
