// Package jobs runs the background maintenance work: raw-data retention
// cleanup and periodic heatmap refresh.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gemnar/internal/config"
	"gemnar/internal/database"
)

// Scheduler drives the background jobs. It implements
// cartridge.BackgroundWorker so the application lifecycle owns it.
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// One job at a time; overlapping runs are skipped, not queued
	processingMutex sync.Mutex
	isProcessing    bool

	retentionJob *RetentionJob
	heatmapJob   *HeatmapRefreshJob

	heatmapTicker   *time.Ticker
	retentionTicker *time.Ticker
}

func NewScheduler(dbManager *database.DBManager, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		cfg:       cfg,
	}

	s.retentionJob = NewRetentionJob(dbManager, logger, cfg)
	s.heatmapJob = NewHeatmapRefreshJob(dbManager, logger)

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing,
// and keeps a panicking job from taking the scheduler down with it.
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}
	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true

	s.startHeatmapRefreshJob()
	s.startRetentionJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))
	return nil
}

func (s *Scheduler) startHeatmapRefreshJob() {
	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.logger.Info("Starting heatmap refresh job", slog.Duration("interval", interval))
	s.heatmapTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.heatmapTicker.C:
				s.executeJobSafely("heatmap_refresh", s.heatmapJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Heatmap refresh job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startRetentionJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting retention cleanup job", slog.Duration("interval", interval))
	s.retentionTicker = time.NewTicker(interval)

	go func() {
		s.logger.Info("Running initial retention cleanup...")
		s.executeJobSafely("retention_cleanup", s.retentionJob.Run)

		for {
			select {
			case <-s.retentionTicker.C:
				s.executeJobSafely("retention_cleanup", s.retentionJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Retention cleanup job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.heatmapTicker != nil {
		s.heatmapTicker.Stop()
	}
	if s.retentionTicker != nil {
		s.retentionTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning reports whether jobs are currently running.
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// RefreshHeatmaps triggers an immediate heatmap refresh outside the ticker.
func (s *Scheduler) RefreshHeatmaps() error {
	if !s.enabled {
		return nil
	}
	return s.heatmapJob.Run()
}
