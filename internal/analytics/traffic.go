package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"gemnar/internal/timeframe"
)

// DailyTraffic pairs the per-day session and page view series for a window.
type DailyTraffic struct {
	Sessions  []timeframe.DateStat `json:"sessions"`
	PageViews []timeframe.DateStat `json:"page_views"`
}

// GetDailyTraffic returns zero-filled per-calendar-day session and page
// view counts. One grouped query per table covers the whole window.
func GetDailyTraffic(db *gorm.DB, params ProjectScopedQueryParams) (*DailyTraffic, error) {
	sessions, err := dailyCounts(db, params, "sessions")
	if err != nil {
		return nil, err
	}
	pageViews, err := dailyCounts(db, params, "page_views")
	if err != nil {
		return nil, err
	}

	return &DailyTraffic{
		Sessions:  params.TimeFrame.BuildTimeSeriesPoints(sessions),
		PageViews: params.TimeFrame.BuildTimeSeriesPoints(pageViews),
	}, nil
}

func dailyCounts(db *gorm.DB, params ProjectScopedQueryParams, table string) ([]timeframe.DateStat, error) {
	groupExpr := params.TimeFrame.GroupByDayExpression("started_at")

	var results []timeframe.DateStat
	query := fmt.Sprintf(`
    SELECT %s AS date, COUNT(*) AS count
    FROM %s
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    GROUP BY date
    ORDER BY date
    `, groupExpr, table)

	err := db.Raw(query,
		params.ProjectID,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
	).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching daily counts from %s: %w", table, err)
	}
	return results, nil
}
