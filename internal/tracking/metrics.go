package tracking

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// LoadMetricsInput carries the load-timing fields a client reports once the
// browser has finished measuring. Nil fields were not sent and stay
// untouched.
type LoadMetricsInput struct {
	TrackingCode  string
	PageViewToken string

	LoadTimeMs               *int
	DOMContentLoadedMs       *int
	FirstPaintMs             *int
	FirstInputDelayMs        *int
	LargestContentfulPaintMs *int
}

// UpdateLoadMetrics applies the present fields to the page view and returns
// the column names that were actually written.
func UpdateLoadMetrics(dbManager cartridge.DBManager, logger *slog.Logger, input *LoadMetricsInput) ([]string, error) {
	db := dbManager.GetConnection()

	pageView, err := GetOwnedPageView(db, input.TrackingCode, input.PageViewToken)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	var updatedFields []string

	apply := func(column string, value *int) {
		if value != nil {
			updates[column] = *value
			updatedFields = append(updatedFields, column)
		}
	}
	apply("load_time_ms", input.LoadTimeMs)
	apply("dom_content_loaded_ms", input.DOMContentLoadedMs)
	apply("first_paint_ms", input.FirstPaintMs)
	apply("first_input_delay_ms", input.FirstInputDelayMs)
	apply("largest_contentful_paint_ms", input.LargestContentfulPaintMs)

	if len(updates) == 0 {
		return []string{}, nil
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&PageView{}).Where("id = ?", pageView.ID).Updates(updates).Error
	})
	if err != nil {
		logger.Error("Failed to update load metrics", slog.Any("error", err))
		return nil, fmt.Errorf("failed to update load metrics: %w", err)
	}

	return updatedFields, nil
}

// EngagementInput carries the periodic engagement beacon posted while the
// visitor is on the page and once more when they leave.
type EngagementInput struct {
	TrackingCode  string
	PageViewToken string

	DurationSeconds       int
	ScrollDepthPercentage int
	ClicksCount           int
	FormInteractions      int
	IsFinalUpdate         bool
}

// ApplyEngagement overwrites the page view's engagement counters with the
// client's latest snapshot, clamping the reported duration. A final update
// also stamps ended_at. The owning session's duration is always recomputed
// from its immutable start time, never trusted from the client.
func ApplyEngagement(dbManager cartridge.DBManager, logger *slog.Logger, input *EngagementInput) (*PageView, error) {
	db := dbManager.GetConnection()

	pageView, err := GetOwnedPageView(db, input.TrackingCode, input.PageViewToken)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	duration := clampInt(input.DurationSeconds, 0, MaxPageViewDurationSeconds)

	updates := map[string]interface{}{
		"duration_seconds":        duration,
		"scroll_depth_percentage": input.ScrollDepthPercentage,
		"clicks_count":            input.ClicksCount,
		"form_interactions":       input.FormInteractions,
	}
	if input.IsFinalUpdate {
		updates["ended_at"] = now
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Model(&PageView{}).Where("id = ?", pageView.ID).Updates(updates).Error; err != nil {
			return err
		}

		return tx.Exec(`
            UPDATE sessions SET
                last_activity = ?,
                duration_seconds = MIN(?, MAX(0, CAST(
                    (JULIANDAY(?) - JULIANDAY(started_at)) * 86400 AS INTEGER
                )))
            WHERE id = ?
        `, now, MaxSessionDurationSeconds, now, pageView.SessionID).Error
	})
	if err != nil {
		logger.Error("Failed to apply engagement metrics", slog.Any("error", err))
		return nil, fmt.Errorf("failed to apply engagement metrics: %w", err)
	}

	pageView.DurationSeconds = duration
	pageView.ScrollDepthPercentage = input.ScrollDepthPercentage
	pageView.ClicksCount = input.ClicksCount
	pageView.FormInteractions = input.FormInteractions
	if input.IsFinalUpdate {
		pageView.EndedAt = &now
	}
	return pageView, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
