package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"gemnar/internal/analytics"
	"gemnar/internal/pkg/async"
	"gemnar/internal/projects"
	"gemnar/internal/timeframe"
)

// DashboardResponse bundles every widget the dashboard renders for one
// project and window.
type DashboardResponse struct {
	TotalSessions  int64   `json:"total_sessions"`
	TotalPageViews int64   `json:"total_page_views"`
	AvgDuration    float64 `json:"avg_session_duration"`
	BounceRate     float64 `json:"bounce_rate"`
	AvgLoadTimeMs  float64 `json:"avg_load_time_ms"`

	TopPages     []analytics.PageStat          `json:"top_pages"`
	TopDevices   []analytics.MetricCountResult `json:"top_devices"`
	TopBrowsers  []analytics.MetricCountResult `json:"top_browsers"`
	TopCountries []analytics.MetricCountResult `json:"top_countries"`

	DailyTraffic *analytics.DailyTraffic   `json:"daily_traffic"`
	Funnel       []analytics.FunnelStep    `json:"funnel"`
	Goals        *analytics.GoalConversion `json:"goals"`

	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

// fetchDashboard fans the widget queries out over the worker pool. A
// failing widget degrades to its zero value instead of failing the whole
// dashboard.
func fetchDashboard(db *gorm.DB, tf *timeframe.TimeFrame, projectID uint, logger *slog.Logger) *DashboardResponse {
	params := analytics.ProjectScopedQueryParams{ProjectID: projectID, TimeFrame: tf}

	tasks := []async.Task{
		{
			Name: "overview",
			Execute: func() (interface{}, error) {
				return analytics.GetOverviewStats(db, params)
			},
		},
		{
			Name: "topPages",
			Execute: func() (interface{}, error) {
				return analytics.GetTopPages(db, params)
			},
		},
		{
			Name: "topDevices",
			Execute: func() (interface{}, error) {
				return analytics.GetDeviceBreakdown(db, params)
			},
		},
		{
			Name: "topBrowsers",
			Execute: func() (interface{}, error) {
				return analytics.GetBrowserBreakdown(db, params)
			},
		},
		{
			Name: "topCountries",
			Execute: func() (interface{}, error) {
				stats, err := analytics.GetCountryBreakdown(db, params)
				if err != nil {
					return nil, err
				}
				return convertCountryStats(stats), nil
			},
		},
		{
			Name: "dailyTraffic",
			Execute: func() (interface{}, error) {
				return analytics.GetDailyTraffic(db, params)
			},
		},
		{
			Name: "funnel",
			Execute: func() (interface{}, error) {
				return analytics.GetFunnel(db, params)
			},
		},
		{
			Name: "goals",
			Execute: func() (interface{}, error) {
				return analytics.GetGoalConversion(db, params)
			},
		},
	}

	pool := async.NewPool(8)
	results := pool.Execute(context.Background(), tasks)

	for name, result := range results {
		if result.Err != nil {
			logger.Error("Dashboard widget query failed",
				slog.String("widget", name),
				slog.Any("error", result.Err))
		}
	}

	resp := &DashboardResponse{
		TopPages:     []analytics.PageStat{},
		TopDevices:   []analytics.MetricCountResult{},
		TopBrowsers:  []analytics.MetricCountResult{},
		TopCountries: []analytics.MetricCountResult{},
		Funnel:       []analytics.FunnelStep{},
		DateFrom:     tf.From.Format("2006-01-02"),
		DateTo:       tf.To.Format("2006-01-02"),
	}

	if overview, ok := results["overview"].Data.(*analytics.OverviewStats); ok && overview != nil {
		resp.TotalSessions = overview.TotalSessions
		resp.TotalPageViews = overview.TotalPageViews
		resp.AvgDuration = overview.AvgSessionDuration
		resp.BounceRate = overview.BounceRate
		resp.AvgLoadTimeMs = overview.AvgLoadTimeMs
	}
	if pages, ok := results["topPages"].Data.([]analytics.PageStat); ok && pages != nil {
		resp.TopPages = pages
	}
	resp.TopDevices = metricResultsOrEmpty(results, "topDevices")
	resp.TopBrowsers = metricResultsOrEmpty(results, "topBrowsers")
	resp.TopCountries = metricResultsOrEmpty(results, "topCountries")
	if traffic, ok := results["dailyTraffic"].Data.(*analytics.DailyTraffic); ok {
		resp.DailyTraffic = traffic
	}
	if funnel, ok := results["funnel"].Data.([]analytics.FunnelStep); ok && funnel != nil {
		resp.Funnel = funnel
	}
	if goals, ok := results["goals"].Data.(*analytics.GoalConversion); ok {
		resp.Goals = goals
	}
	return resp
}

// ProjectDashboardAction serves the aggregated dashboard for one project.
// GET /admin/api/projects/:id/dashboard?from=&to=
func ProjectDashboardAction(ctx *cartridge.Context) error {
	project, err := resolveProjectParam(ctx)
	if err != nil {
		return err
	}

	tf := timeframe.ParseRange(ctx.Query("from"), ctx.Query("to"), timeNow())
	resp := fetchDashboard(ctx.DBManager.GetConnection(), tf, project.ID, ctx.Logger)
	return ctx.JSON(resp)
}

// ProjectExitRateAction computes the exit rate of one page.
// GET /admin/api/projects/:id/pages/exit-rate?path=
func ProjectExitRateAction(ctx *cartridge.Context) error {
	project, err := resolveProjectParam(ctx)
	if err != nil {
		return err
	}

	path := ctx.Query("path")
	if path == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path is required"})
	}

	tf := timeframe.ParseRange(ctx.Query("from"), ctx.Query("to"), timeNow())
	result, err := analytics.GetExitRate(ctx.DBManager.GetConnection(), analytics.ProjectScopedQueryParams{
		ProjectID: project.ID,
		TimeFrame: tf,
	}, path)
	if err != nil {
		ctx.Logger.Error("Exit rate query failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	return ctx.JSON(result)
}

// resolveProjectParam loads the project addressed by the :id route param,
// writing the error response itself when resolution fails.
func resolveProjectParam(ctx *cartridge.Context) (*projects.Project, error) {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid project id"})
	}

	project, err := projects.GetProjectByID(ctx.DBManager.GetConnection(), uint(id))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Project not found"})
		}
		ctx.Logger.Error("Failed to load project", slog.Any("error", err))
		return nil, ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	return project, nil
}

// convertCountryStats maps ISO alpha-2 codes to display names.
func convertCountryStats(items []analytics.MetricCountResult) []analytics.MetricCountResult {
	if len(items) == 0 {
		return []analytics.MetricCountResult{}
	}

	caser := cases.Upper(language.AmericanEnglish)
	countries := gountries.New()

	result := make([]analytics.MetricCountResult, len(items))
	for i, item := range items {
		country, err := countries.FindCountryByAlpha(item.Name)
		if err != nil {
			result[i] = analytics.MetricCountResult{Name: caser.String(item.Name), Count: item.Count}
			continue
		}
		result[i] = analytics.MetricCountResult{Name: country.Name.Common, Count: item.Count}
	}
	return result
}

func metricResultsOrEmpty(results map[string]async.Result, name string) []analytics.MetricCountResult {
	if result, exists := results[name]; exists {
		if items, ok := result.Data.([]analytics.MetricCountResult); ok && items != nil {
			return items
		}
	}
	return []analytics.MetricCountResult{}
}
