package jobs

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"gemnar/internal/config"
	"gemnar/internal/tracking"
)

// RetentionJob deletes raw tracking data older than the configured
// retention window. Aggregated heatmaps are kept; they are derived data
// and deliberately survive their sources.
type RetentionJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewRetentionJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *RetentionJob {
	return &RetentionJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run removes sessions, page views, events and recordings past retention.
// Children go first so cascade order never matters.
func (j *RetentionJob) Run() error {
	retentionDays := j.cfg.RawDataRetentionDays
	db := j.dbManager.GetConnection()
	cutoffDate := time.Now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting raw data retention cleanup",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	steps := []struct {
		name   string
		delete func() *gorm.DB
	}{
		{
			name: "recordings",
			delete: func() *gorm.DB {
				return db.Where(
					"page_view_id IN (SELECT id FROM page_views WHERE started_at < ?)", cutoffDate,
				).Limit(deleteBatchSize).Delete(&tracking.Recording{})
			},
		},
		{
			name: "events",
			delete: func() *gorm.DB {
				return db.Where(
					"page_view_id IN (SELECT id FROM page_views WHERE started_at < ?)", cutoffDate,
				).Limit(deleteBatchSize).Delete(&tracking.Event{})
			},
		},
		{
			name: "page_views",
			delete: func() *gorm.DB {
				return db.Where("started_at < ?", cutoffDate).
					Limit(deleteBatchSize).Delete(&tracking.PageView{})
			},
		},
		{
			name: "sessions",
			delete: func() *gorm.DB {
				return db.Where("last_activity < ?", cutoffDate).
					Limit(deleteBatchSize).Delete(&tracking.Session{})
			},
		},
	}

	for _, step := range steps {
		deleted, err := j.deleteInBatches(step.name, step.delete)
		if err != nil {
			return err
		}
		if deleted > 0 {
			j.logger.Info("Cleaned up old rows",
				slog.String("table", step.name),
				slog.Int64("deleted_count", deleted))
		}
	}

	return nil
}

const deleteBatchSize = 1000

// deleteInBatches repeats a bounded delete until it runs dry, pausing
// between rounds to keep writer lock contention low.
func (j *RetentionJob) deleteInBatches(name string, deleteBatch func() *gorm.DB) (int64, error) {
	totalDeleted := int64(0)
	for {
		result := deleteBatch()
		if result.Error != nil {
			j.logger.Error("Failed to delete old rows",
				slog.String("table", name),
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return totalDeleted, result.Error
		}

		totalDeleted += result.RowsAffected
		if result.RowsAffected < int64(deleteBatchSize) {
			return totalDeleted, nil
		}

		time.Sleep(100 * time.Millisecond)
	}
}
