// Package scheduler triggers periodic sync runs from a cron expression.
package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"catalog-sync/internal/models"
	"catalog-sync/internal/util"
)

// SyncTrigger is the slice of the orchestrator the scheduler needs.
type SyncTrigger interface {
	Trigger(ctx context.Context, target string, policy models.SyncPolicy) (string, error)
}

// Scheduler fires full sync runs on a cron schedule. An overlapping tick is
// skipped, never queued: the one-run-per-target rule holds for scheduled
// triggers the same as manual ones.
type Scheduler struct {
	cron    *cron.Cron
	trigger SyncTrigger
	spec    string
	target  string
	policy  models.SyncPolicy
	logger  *zap.Logger
}

// New builds a scheduler from a cron spec. An empty spec disables scheduling;
// Start becomes a no-op.
func New(trigger SyncTrigger, spec, target string, policy models.SyncPolicy) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		trigger: trigger,
		spec:    spec,
		target:  target,
		policy:  policy,
		logger:  util.GetLogger(),
	}
}

// Start registers the cron entry and begins scheduling.
func (s *Scheduler) Start() error {
	if s.spec == "" {
		s.logger.Info("Scheduled sync disabled, no cron spec configured")
		return nil
	}

	_, err := s.cron.AddFunc(s.spec, s.tick)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Scheduled sync enabled", zap.String("spec", s.spec))
	return nil
}

func (s *Scheduler) tick() {
	runID, err := s.trigger.Trigger(context.Background(), s.target, s.policy)
	if err != nil {
		var running *models.AlreadyRunningError
		if errors.As(err, &running) {
			s.logger.Info("Skipping scheduled sync, run already active",
				zap.String("run_id", running.RunID))
			return
		}
		s.logger.Error("Failed to start scheduled sync", zap.Error(err))
		return
	}
	s.logger.Info("Scheduled sync started", zap.String("run_id", runID))
}

// Stop halts scheduling and waits for a running trigger callback to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
