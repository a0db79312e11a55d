package jobs

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"gemnar/internal/heatmaps"
	"gemnar/internal/projects"
	"gemnar/internal/timeframe"
)

// HeatmapRefreshJob regenerates heatmaps for every active project's top
// pages over the trailing default window. Runs at most once per day no
// matter how often the scheduler ticks.
type HeatmapRefreshJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger

	lastRun time.Time
}

func NewHeatmapRefreshJob(dbManager cartridge.DBManager, logger *slog.Logger) *HeatmapRefreshJob {
	return &HeatmapRefreshJob{
		dbManager: dbManager,
		logger:    logger,
	}
}

func (j *HeatmapRefreshJob) Run() error {
	now := time.Now().UTC()
	if !j.lastRun.IsZero() && now.Sub(j.lastRun) < 24*time.Hour {
		j.logger.Debug("Skipping heatmap refresh, ran recently",
			slog.Time("last_run", j.lastRun))
		return nil
	}

	db := j.dbManager.GetConnection()
	allProjects, err := projects.GetAllProjects(db)
	if err != nil {
		return err
	}

	window := timeframe.LastNDays(timeframe.DefaultRangeDays, now)
	for _, project := range allProjects {
		if !project.IsActive {
			continue
		}

		result, err := heatmaps.GenerateAll(j.dbManager, j.logger, project.ID, window)
		if err != nil {
			j.logger.Error("Heatmap refresh failed for project",
				slog.Uint64("project_id", uint64(project.ID)),
				slog.Any("error", err))
			continue
		}

		j.logger.Info("Refreshed heatmaps",
			slog.Uint64("project_id", uint64(project.ID)),
			slog.Int("generated", len(result.Generated)),
			slog.Int("skipped", len(result.Skipped)))
	}

	j.lastRun = now
	return nil
}
