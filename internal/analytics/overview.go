package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// OverviewStats holds the headline dashboard numbers for a window.
type OverviewStats struct {
	TotalSessions      int64   `json:"total_sessions"`
	TotalPageViews     int64   `json:"total_page_views"`
	AvgSessionDuration float64 `json:"avg_session_duration"`
	BounceRate         float64 `json:"bounce_rate"`
	AvgLoadTimeMs      float64 `json:"avg_load_time_ms"`
}

// GetOverviewStats computes the headline numbers in one pass.
func GetOverviewStats(db *gorm.DB, params ProjectScopedQueryParams) (*OverviewStats, error) {
	stats := &OverviewStats{}

	var err error
	if stats.TotalSessions, err = countSessions(db, params); err != nil {
		return nil, err
	}
	if stats.TotalPageViews, err = countPageViews(db, params); err != nil {
		return nil, err
	}
	if stats.AvgSessionDuration, err = GetAverageSessionDuration(db, params); err != nil {
		return nil, err
	}
	if stats.BounceRate, err = GetBounceRate(db, params); err != nil {
		return nil, err
	}
	if stats.AvgLoadTimeMs, err = GetAverageLoadTime(db, params); err != nil {
		return nil, err
	}
	return stats, nil
}

func countSessions(db *gorm.DB, params ProjectScopedQueryParams) (int64, error) {
	var count int64
	err := db.Raw(`
    SELECT COUNT(*) FROM sessions
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    `, params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC()).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting sessions: %w", err)
	}
	return count, nil
}

func countPageViews(db *gorm.DB, params ProjectScopedQueryParams) (int64, error) {
	var count int64
	err := db.Raw(`
    SELECT COUNT(*) FROM page_views
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    `, params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC()).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting page views: %w", err)
	}
	return count, nil
}

// GetAverageSessionDuration returns the mean session duration in seconds.
// Primary source is stored durations in (0, 86400); zero-duration sessions
// count as "not yet measured", not as instant bounces. When no session has
// a usable stored duration it falls back to the last_activity - started_at
// delta restricted to [1, 86400], and finally to 0.
func GetAverageSessionDuration(db *gorm.DB, params ProjectScopedQueryParams) (float64, error) {
	var stored *float64
	err := db.Raw(`
    SELECT AVG(duration_seconds) FROM sessions
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    AND duration_seconds > 0 AND duration_seconds < 86400
    `, params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC()).Scan(&stored).Error
	if err != nil {
		return 0, fmt.Errorf("error averaging stored session durations: %w", err)
	}
	if stored != nil && *stored > 0 {
		return *stored, nil
	}

	var derived *float64
	err = db.Raw(`
    SELECT AVG(delta) FROM (
        SELECT CAST((JULIANDAY(last_activity) - JULIANDAY(started_at)) * 86400 AS INTEGER) AS delta
        FROM sessions
        WHERE project_id = ? AND started_at BETWEEN ? AND ?
    ) WHERE delta BETWEEN 1 AND 86400
    `, params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC()).Scan(&derived).Error
	if err != nil {
		return 0, fmt.Errorf("error averaging derived session durations: %w", err)
	}
	if derived != nil {
		return *derived, nil
	}
	return 0, nil
}

// GetBounceRate returns the share of single-page sessions as a percentage,
// 0 when the window holds no sessions.
func GetBounceRate(db *gorm.DB, params ProjectScopedQueryParams) (float64, error) {
	var result struct {
		Bounces int64
		Total   int64
	}
	err := db.Raw(`
    SELECT
        SUM(CASE WHEN is_bounce THEN 1 ELSE 0 END) AS bounces,
        COUNT(*) AS total
    FROM sessions
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    `, params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC()).Scan(&result).Error
	if err != nil {
		return 0, fmt.Errorf("error computing bounce rate: %w", err)
	}
	if result.Total == 0 {
		return 0, nil
	}
	return float64(result.Bounces) / float64(result.Total) * 100, nil
}

// GetAverageLoadTime returns the mean page load time in milliseconds.
// The primary aggregate keeps values in (0, 30000); when that sample is
// empty the upper bound is dropped, and finally 0 is reported.
func GetAverageLoadTime(db *gorm.DB, params ProjectScopedQueryParams) (float64, error) {
	var bounded *float64
	err := db.Raw(`
    SELECT AVG(load_time_ms) FROM page_views
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    AND load_time_ms > 0 AND load_time_ms < ?
    `, params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC(), SaneLoadTimeCeilingMs).Scan(&bounded).Error
	if err != nil {
		return 0, fmt.Errorf("error averaging bounded load times: %w", err)
	}
	if bounded != nil {
		return *bounded, nil
	}

	var unbounded *float64
	err = db.Raw(`
    SELECT AVG(load_time_ms) FROM page_views
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    AND load_time_ms > 0
    `, params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC()).Scan(&unbounded).Error
	if err != nil {
		return 0, fmt.Errorf("error averaging unbounded load times: %w", err)
	}
	if unbounded != nil {
		return *unbounded, nil
	}
	return 0, nil
}
