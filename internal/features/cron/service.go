package cron_feature

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	common_models "kod-admin/internal/common/models"
	"kod-admin/internal/config"
	"kod-admin/internal/features/audit"
	"kod-admin/internal/features/role"
	"kod-admin/internal/metrics"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Upper bound for a single reconcile run.
const runTimeout = 2 * time.Minute

var ErrReconcileRunning = errors.New("reconcile already running")

// Resyncer republishes every role from the record store.
type Resyncer interface {
	ResyncAll(ctx context.Context) (*role.ResyncReport, error)
}

type ReconcileService interface {
	RunNow(ctx context.Context, trigger string) (*ReconcileRun, error)
	ListRuns(ctx context.Context, limit int) ([]ReconcileRun, error)
	InitializeScheduler(ctx context.Context) error
	StopScheduler() error
}

type ReconcileServiceImpl struct {
	repo         ReconcileRepository
	resyncer     Resyncer
	auditService audit.AuditService
	metrics      *metrics.Metrics
	logger       *zap.Logger
	schedule     string

	scheduler *cron.Cron
	running   sync.Mutex
}

func NewReconcileService(
	repo ReconcileRepository,
	resyncer Resyncer,
	auditService audit.AuditService,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) ReconcileService {
	return &ReconcileServiceImpl{
		repo:         repo,
		resyncer:     resyncer,
		auditService: auditService,
		metrics:      m,
		logger:       logger,
		schedule:     cfg.ReconcileSchedule,
	}
}

// RunNow republishes the broadcast tree once. Only one run executes at a time.
func (s *ReconcileServiceImpl) RunNow(ctx context.Context, trigger string) (*ReconcileRun, error) {
	if !s.running.TryLock() {
		return nil, ErrReconcileRunning
	}
	defer s.running.Unlock()

	run := &ReconcileRun{
		Trigger:   trigger,
		StartTime: time.Now(),
		Status:    RunStatusRunning,
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		s.logger.Warn("failed to record reconcile run", zap.Error(err))
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	report, err := s.resyncer.ResyncAll(runCtx)

	end := time.Now()
	run.EndTime = &end
	if report != nil {
		run.RolesSynced = report.Roles
		run.Failed = report.Failed
		run.Aggregated = report.Aggregated
	}
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = RunStatusSuccess
	}

	if uerr := s.repo.UpdateRun(ctx, run); uerr != nil {
		s.logger.Warn("failed to update reconcile run", zap.Error(uerr))
	}
	if s.metrics != nil {
		s.metrics.ReconcileRunsTotal.WithLabelValues(run.Status).Inc()
	}

	_ = s.auditService.LogChange(ctx, common_models.AuditActionCron, "reconcile", run.ID.Hex(), map[string]common_models.Change{
		"status":  {New: run.Status},
		"trigger": {New: trigger},
	})

	s.logger.Info("permission reconcile finished",
		zap.String("trigger", trigger),
		zap.String("status", run.Status),
		zap.Int("roles", run.RolesSynced),
		zap.Duration("took", end.Sub(run.StartTime)),
	)
	return run, err
}

func (s *ReconcileServiceImpl) ListRuns(ctx context.Context, limit int) ([]ReconcileRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListRuns(ctx, limit)
}

// InitializeScheduler starts the periodic reconcile. An empty schedule
// disables it.
func (s *ReconcileServiceImpl) InitializeScheduler(ctx context.Context) error {
	if s.schedule == "" {
		s.logger.Info("permission reconcile schedule disabled")
		return nil
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger.Named("cron")))
	s.scheduler = cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	_, err := s.scheduler.AddFunc(s.schedule, func() {
		if _, err := s.RunNow(context.Background(), TriggerSchedule); err != nil && !errors.Is(err, ErrReconcileRunning) {
			s.logger.Warn("scheduled permission reconcile failed", zap.Error(err))
		}
	})
	if err != nil {
		s.scheduler = nil
		return fmt.Errorf("invalid reconcile schedule %q: %w", s.schedule, err)
	}

	s.scheduler.Start()
	s.logger.Info("permission reconcile scheduled", zap.String("schedule", s.schedule))
	return nil
}

func (s *ReconcileServiceImpl) StopScheduler() error {
	if s.scheduler != nil {
		ctx := s.scheduler.Stop()
		<-ctx.Done()
	}
	return nil
}
