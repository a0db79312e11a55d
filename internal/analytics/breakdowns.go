package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// GetDeviceBreakdown groups in-window sessions by device type.
func GetDeviceBreakdown(db *gorm.DB, params ProjectScopedQueryParams) ([]MetricCountResult, error) {
	return sessionBreakdown(db, params, "device_type", 0)
}

// GetBrowserBreakdown groups in-window sessions by browser, capped to the
// top entries.
func GetBrowserBreakdown(db *gorm.DB, params ProjectScopedQueryParams) ([]MetricCountResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = TopBrowsersLimit
	}
	return sessionBreakdown(db, params, "browser", limit)
}

// GetCountryBreakdown groups in-window sessions by ISO country code.
// Sessions without a resolved country are omitted.
func GetCountryBreakdown(db *gorm.DB, params ProjectScopedQueryParams) ([]MetricCountResult, error) {
	var results []MetricCountResult
	err := db.Raw(`
    SELECT country AS name, COUNT(*) AS count
    FROM sessions
    WHERE project_id = ? AND started_at BETWEEN ? AND ? AND country != ''
    GROUP BY country
    ORDER BY count DESC
    `, params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC()).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching country breakdown: %w", err)
	}
	return results, nil
}

func sessionBreakdown(db *gorm.DB, params ProjectScopedQueryParams, column string, limit int) ([]MetricCountResult, error) {
	query := fmt.Sprintf(`
    SELECT %s AS name, COUNT(*) AS count
    FROM sessions
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    GROUP BY %s
    ORDER BY count DESC
    `, column, column)
	args := []interface{}{params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC()}
	if limit > 0 {
		query += "LIMIT ?"
		args = append(args, limit)
	}

	var results []MetricCountResult
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching %s breakdown: %w", column, err)
	}
	return results, nil
}
