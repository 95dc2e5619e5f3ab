package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/propms/backend/internal/application/billing"
	"github.com/propms/backend/internal/infrastructure/cache"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Lock names shared between scheduled and manually triggered runs
const (
	sweepLockName = "overdue-sweep"
	cloneLockName = "cycle-cloner"
)

// BillingRunner is the interface for executing billing batch runs
type BillingRunner interface {
	RunOverdueSweep(ctx context.Context, now time.Time) (billing.SweepReport, error)
	RunCycleCloner(ctx context.Context, now time.Time) (billing.CloneReport, error)
}

// BillingSchedulerConfig holds configuration for the billing scheduler
type BillingSchedulerConfig struct {
	Enabled       bool
	SweepSchedule string // cron expression for the overdue sweep
	CloneSchedule string // cron expression for the cycle cloner
	RunTimeout    time.Duration
	LockTTL       time.Duration
}

// DefaultBillingSchedulerConfig returns default scheduler configuration
func DefaultBillingSchedulerConfig() BillingSchedulerConfig {
	return BillingSchedulerConfig{
		Enabled:       true,
		SweepSchedule: "0 * * * *",
		CloneSchedule: "0 2 * * *",
		RunTimeout:    10 * time.Minute,
		LockTTL:       15 * time.Minute,
	}
}

// RunRecord captures the outcome of the most recent run of a batch
type RunRecord struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
	Details    any       `json:"details,omitempty"`
}

// Status describes the scheduler for the admin status endpoint
type Status struct {
	Running       bool       `json:"running"`
	SweepSchedule string     `json:"sweep_schedule"`
	CloneSchedule string     `json:"clone_schedule"`
	LastSweep     *RunRecord `json:"last_sweep,omitempty"`
	LastClone     *RunRecord `json:"last_clone,omitempty"`
}

// BillingScheduler fires the overdue sweep and the cycle cloner on
// their cron schedules. Every run, scheduled or manually triggered,
// takes a named run lock first so overlapping invocations cannot race
// the cloner's duplicate check.
type BillingScheduler struct {
	config BillingSchedulerConfig
	runner BillingRunner
	lock   cache.RunLock
	logger *zap.Logger

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
	lastSweep *RunRecord
	lastClone *RunRecord
}

// NewBillingScheduler creates a new billing scheduler
func NewBillingScheduler(
	config BillingSchedulerConfig,
	runner BillingRunner,
	lock cache.RunLock,
	logger *zap.Logger,
) *BillingScheduler {
	return &BillingScheduler{
		config: config,
		runner: runner,
		lock:   lock,
		logger: logger,
	}
}

// Start registers the cron entries and starts the scheduler
func (s *BillingScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if !s.config.Enabled {
		s.logger.Info("Billing scheduler is disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.config.SweepSchedule, s.scheduledSweep); err != nil {
		return fmt.Errorf("%w: sweep schedule %q: %v", ErrInvalidSchedule, s.config.SweepSchedule, err)
	}
	if _, err := c.AddFunc(s.config.CloneSchedule, s.scheduledClone); err != nil {
		return fmt.Errorf("%w: clone schedule %q: %v", ErrInvalidSchedule, s.config.CloneSchedule, err)
	}
	c.Start()

	s.cron = c
	s.isRunning = true

	s.logger.Info("Billing scheduler started",
		zap.String("sweep_schedule", s.config.SweepSchedule),
		zap.String("clone_schedule", s.config.CloneSchedule),
		zap.Duration("run_timeout", s.config.RunTimeout),
	)
	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-flight run
func (s *BillingScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("Billing scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Billing scheduler stop timed out")
		return ctx.Err()
	}
}

// RunSweepNow executes the overdue sweep immediately, subject to the
// run lock. asOf is the instant bills are evaluated against, normally
// the current time.
func (s *BillingScheduler) RunSweepNow(ctx context.Context, asOf time.Time) (billing.SweepReport, error) {
	var report billing.SweepReport
	err := s.runLocked(ctx, sweepLockName, &s.lastSweep, func(runCtx context.Context) (any, error) {
		var runErr error
		report, runErr = s.runner.RunOverdueSweep(runCtx, asOf)
		return report, runErr
	})
	return report, err
}

// RunClonerNow executes the cycle cloner immediately, subject to the run lock
func (s *BillingScheduler) RunClonerNow(ctx context.Context, asOf time.Time) (billing.CloneReport, error) {
	var report billing.CloneReport
	err := s.runLocked(ctx, cloneLockName, &s.lastClone, func(runCtx context.Context) (any, error) {
		var runErr error
		report, runErr = s.runner.RunCycleCloner(runCtx, asOf)
		return report, runErr
	})
	return report, err
}

// Status returns the current scheduler state and last run outcomes
func (s *BillingScheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Running:       s.isRunning,
		SweepSchedule: s.config.SweepSchedule,
		CloneSchedule: s.config.CloneSchedule,
		LastSweep:     s.lastSweep,
		LastClone:     s.lastClone,
	}
}

// scheduledSweep is the cron entry point for the overdue sweep
func (s *BillingScheduler) scheduledSweep() {
	if _, err := s.RunSweepNow(context.Background(), time.Now()); err != nil {
		s.logger.Error("Scheduled overdue sweep failed", zap.Error(err))
	}
}

// scheduledClone is the cron entry point for the cycle cloner
func (s *BillingScheduler) scheduledClone() {
	if _, err := s.RunClonerNow(context.Background(), time.Now()); err != nil {
		s.logger.Error("Scheduled cycle cloner failed", zap.Error(err))
	}
}

// runLocked wraps a batch run with the named run lock, a timeout and
// last-run bookkeeping
func (s *BillingScheduler) runLocked(ctx context.Context, name string, recordSlot **RunRecord, fn func(context.Context) (any, error)) error {
	token, err := s.lock.TryAcquire(ctx, name, s.config.LockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire %s lock: %w", name, err)
	}
	if token == "" {
		return ErrRunAlreadyInProgress
	}
	defer func() {
		if err := s.lock.Release(context.Background(), name, token); err != nil {
			s.logger.Warn("Failed to release run lock",
				zap.String("lock", name),
				zap.Error(err),
			)
		}
	}()

	runCtx := ctx
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	record := &RunRecord{StartedAt: time.Now()}
	details, runErr := fn(runCtx)
	record.FinishedAt = time.Now()
	record.Details = details
	if runErr != nil {
		record.Error = runErr.Error()
	}

	s.mu.Lock()
	*recordSlot = record
	s.mu.Unlock()

	return runErr
}
