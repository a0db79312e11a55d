package analytics

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// FunnelStep describes one stage of the fixed acquisition funnel.
type FunnelStep struct {
	Name           string   `json:"name"`
	Paths          []string `json:"paths"`
	Sessions       int64    `json:"sessions"`
	ConversionRate float64  `json:"conversion_rate"`
	DropOffRate    float64  `json:"drop_off_rate"`
}

// funnelSteps is the fixed four-stage funnel every dashboard shows. Each
// step counts distinct sessions that visited any of its paths; steps are
// independent, not sequential.
func funnelSteps() []FunnelStep {
	return []FunnelStep{
		{Name: "Landing", Paths: []string{"/"}},
		{Name: "Product", Paths: []string{"/product", "/products", "/services", "/pricing"}},
		{Name: "Engagement", Paths: []string{"/contact", "/about"}},
		{Name: "Conversion", Paths: []string{"/signup", "/register", "/checkout", "/demo"}},
	}
}

// goalPaths are the fixed completion pages shared by all projects.
var goalPaths = []string{"/thank-you", "/success", "/confirmation", "/checkout-complete"}

// GetFunnel computes the fixed funnel over the window. Each step's
// conversion rate is its session count over the window's total sessions;
// the drop-off rate of a non-landing step is the complement of that step's
// own conversion rate, not a step-to-step delta.
func GetFunnel(db *gorm.DB, params ProjectScopedQueryParams) ([]FunnelStep, error) {
	totalSessions, err := countSessions(db, params)
	if err != nil {
		return nil, err
	}

	steps := funnelSteps()
	for i := range steps {
		count, err := countSessionsVisitingAny(db, params, steps[i].Paths)
		if err != nil {
			return nil, err
		}
		steps[i].Sessions = count

		if totalSessions > 0 {
			steps[i].ConversionRate = float64(count) / float64(totalSessions) * 100
		}
		if i > 0 {
			steps[i].DropOffRate = 100 - steps[i].ConversionRate
		}
	}
	return steps, nil
}

// GoalConversion reports the share of sessions that reached any goal page.
type GoalConversion struct {
	GoalSessions   int64   `json:"goal_sessions"`
	TotalSessions  int64   `json:"total_sessions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// GetGoalConversion counts distinct sessions that visited a goal path.
func GetGoalConversion(db *gorm.DB, params ProjectScopedQueryParams) (*GoalConversion, error) {
	totalSessions, err := countSessions(db, params)
	if err != nil {
		return nil, err
	}

	goalSessions, err := countSessionsVisitingAny(db, params, goalPaths)
	if err != nil {
		return nil, err
	}

	conversion := &GoalConversion{
		GoalSessions:  goalSessions,
		TotalSessions: totalSessions,
	}
	if totalSessions > 0 {
		conversion.ConversionRate = float64(goalSessions) / float64(totalSessions) * 100
	}
	return conversion, nil
}

func countSessionsVisitingAny(db *gorm.DB, params ProjectScopedQueryParams, paths []string) (int64, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	query := fmt.Sprintf(`
    SELECT COUNT(DISTINCT session_id) FROM page_views
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    AND path IN (%s)
    `, placeholders)

	args := []interface{}{params.ProjectID, params.TimeFrame.From.UTC(), params.TimeFrame.To.UTC()}
	for _, path := range paths {
		args = append(args, path)
	}

	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting funnel sessions: %w", err)
	}
	return count, nil
}
