package sync

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"erp-offline-sync/internal/config"
	"erp-offline-sync/internal/logger"
)

type Scheduler struct {
	cfg     config.SchedulerConfig
	manager *Manager
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, manager *Manager) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		cron:    cron.New(),
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, func() {
		s.triggerSync()
	})

	if err != nil {
		logger.Log.Error("Failed to schedule job", zap.Error(err))
		return
	}

	s.entryID = id
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerSync() {
	if s.manager.GetStatus() == StatusDraining {
		logger.Log.Info("Sync already running, skipping scheduled run")
		return
	}

	result, err := s.manager.Sync(context.Background(), TriggerScheduled)
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			logger.Log.Info("Sync already running, skipping scheduled run")
			return
		}
		logger.Log.Error("Scheduled sync failed", zap.Error(err))
		return
	}

	logger.Log.Debug("Scheduled sync completed", zap.String("result", result.String()))
}
