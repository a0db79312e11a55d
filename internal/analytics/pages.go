package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// PageStat summarizes one page path within a window.
type PageStat struct {
	Path          string  `json:"path"`
	Views         int64   `json:"views"`
	AvgDuration   float64 `json:"avg_duration"`
	AvgLoadTimeMs float64 `json:"avg_load_time_ms"`
}

// GetTopPages groups page views by path and returns the most viewed pages.
// Per-page means use the same bounded samples as the overview aggregates:
// durations in (0, 3600) and load times in (0, 30000).
func GetTopPages(db *gorm.DB, params ProjectScopedQueryParams) ([]PageStat, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = TopPagesLimit
	}

	var results []PageStat
	err := db.Raw(`
    SELECT
        path,
        COUNT(*) AS views,
        COALESCE(AVG(CASE WHEN duration_seconds > 0 AND duration_seconds < 3600 THEN duration_seconds END), 0) AS avg_duration,
        COALESCE(AVG(CASE WHEN load_time_ms > 0 AND load_time_ms < ? THEN load_time_ms END), 0) AS avg_load_time_ms
    FROM page_views
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    GROUP BY path
    ORDER BY views DESC
    LIMIT ?
    `, SaneLoadTimeCeilingMs, params.ProjectID,
		params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC(), limit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top pages: %w", err)
	}
	return results, nil
}

// ExitRateResult describes how often a page was the last page of its
// session.
type ExitRateResult struct {
	Path             string  `json:"path"`
	SessionsWithPage int64   `json:"sessions_with_page"`
	ExitSessions     int64   `json:"exit_sessions"`
	ExitRate         float64 `json:"exit_rate"`
}

// GetExitRate computes, over sessions that viewed the given path, the share
// whose most recent page view (by started_at) is that path. A single
// window-function query replaces the per-session lookups this would
// otherwise need.
func GetExitRate(db *gorm.DB, params ProjectScopedQueryParams, path string) (*ExitRateResult, error) {
	var result struct {
		SessionsWithPage int64
		ExitSessions     int64
	}
	err := db.Raw(`
    WITH ranked AS (
        SELECT
            session_id,
            path,
            ROW_NUMBER() OVER (PARTITION BY session_id ORDER BY started_at DESC, id DESC) AS rn
        FROM page_views
        WHERE project_id = ? AND started_at BETWEEN ? AND ?
    )
    SELECT
        (SELECT COUNT(DISTINCT session_id) FROM ranked WHERE path = ?) AS sessions_with_page,
        (SELECT COUNT(*) FROM ranked WHERE rn = 1 AND path = ?
            AND session_id IN (SELECT DISTINCT session_id FROM ranked WHERE path = ?)) AS exit_sessions
    `, params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC(),
		path, path, path).Scan(&result).Error
	if err != nil {
		return nil, fmt.Errorf("error computing exit rate: %w", err)
	}

	exitRate := &ExitRateResult{
		Path:             path,
		SessionsWithPage: result.SessionsWithPage,
		ExitSessions:     result.ExitSessions,
	}
	if result.SessionsWithPage > 0 {
		exitRate.ExitRate = float64(result.ExitSessions) / float64(result.SessionsWithPage) * 100
	}
	return exitRate, nil
}
