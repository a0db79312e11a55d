package heatmaps

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"gemnar/internal/timeframe"
	"gemnar/internal/tracking"
)

const (
	// MinPageViews is the minimum sample before a heatmap is generated.
	MinPageViews = 5

	// MergeRadiusPx coalesces synthesized points closer than this.
	MergeRadiusPx = 50

	// MaxSyntheticClicksPerView caps how many points one page view
	// contributes to the click layer.
	MaxSyntheticClicksPerView = 10

	// BatchTopPathsLimit bounds how many pages batch generation covers.
	BatchTopPathsLimit = 10
)

// Failure messages for insufficient data. These are contractually distinct
// so callers can tell "keep collecting traffic" from "the tracker never
// reported viewport sizes".
const (
	MsgNotEnoughPageViews = "not enough page views"
	MsgNoViewportData     = "no viewport data available"
)

// GenerateResult reports the outcome of a single-page generation. An
// insufficient sample is not an error: Success is false and Message says
// which threshold failed.
type GenerateResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Heatmap *Heatmap `json:"heatmap,omitempty"`
}

// BatchResult summarizes a generate-all run.
type BatchResult struct {
	Generated []string `json:"generated"`
	Skipped   []string `json:"skipped"`
}

// Generate builds or refreshes the heatmap for one page path over the
// window. Page views are grouped by exact viewport dimensions and the
// largest group becomes the heatmap's viewport; the rest are discarded for
// this run.
func Generate(dbManager cartridge.DBManager, logger *slog.Logger, projectID uint, pagePath string, tf *timeframe.TimeFrame) (*GenerateResult, error) {
	db := dbManager.GetConnection()

	var pageViews []tracking.PageView
	err := db.Where("project_id = ? AND path = ? AND started_at BETWEEN ? AND ?",
		projectID, pagePath, tf.From.UTC(), tf.To.UTC()).
		Order("id ASC").
		Find(&pageViews).Error
	if err != nil {
		return nil, fmt.Errorf("error loading page views for heatmap: %w", err)
	}

	if len(pageViews) < MinPageViews {
		return &GenerateResult{Success: false, Message: MsgNotEnoughPageViews}, nil
	}

	group := selectViewportGroup(pageViews)
	if group == nil {
		return &GenerateResult{Success: false, Message: MsgNoViewportData}, nil
	}
	if len(group.members) < MinPageViews {
		return &GenerateResult{Success: false, Message: MsgNotEnoughPageViews}, nil
	}

	clickPoints := MergePoints(synthesizeClickPoints(group), MergeRadiusPx)
	scrollPoints := synthesizeScrollPoints(group)
	attentionPoints := MergePoints(synthesizeAttentionPoints(group), MergeRadiusPx)

	heatmap, err := upsertHeatmap(dbManager, logger, &Heatmap{
		ProjectID:      projectID,
		URLPattern:     pagePath,
		ViewportWidth:  group.width,
		ViewportHeight: group.height,
		SampleSize:     len(group.members),
		DateFrom:       dayFloor(tf.From),
		DateTo:         tf.To.UTC(),
	}, clickPoints, scrollPoints, attentionPoints)
	if err != nil {
		return nil, err
	}

	return &GenerateResult{Success: true, Heatmap: heatmap}, nil
}

// GenerateAll refreshes heatmaps for the project's most viewed pages in the
// window. Pages below the view threshold are skipped, as are pages whose
// sample turns out insufficient once grouped by viewport.
func GenerateAll(dbManager cartridge.DBManager, logger *slog.Logger, projectID uint, tf *timeframe.TimeFrame) (*BatchResult, error) {
	db := dbManager.GetConnection()

	var paths []string
	err := db.Raw(`
    SELECT path FROM page_views
    WHERE project_id = ? AND started_at BETWEEN ? AND ?
    GROUP BY path
    HAVING COUNT(*) >= ?
    ORDER BY COUNT(*) DESC
    LIMIT ?
    `, projectID, tf.From.UTC(), tf.To.UTC(), MinPageViews, BatchTopPathsLimit).Scan(&paths).Error
	if err != nil {
		return nil, fmt.Errorf("error selecting top paths for heatmaps: %w", err)
	}

	result := &BatchResult{Generated: []string{}, Skipped: []string{}}
	for _, path := range paths {
		generated, err := Generate(dbManager, logger, projectID, path, tf)
		if err != nil {
			logger.Error("Heatmap generation failed",
				slog.Uint64("project_id", uint64(projectID)),
				slog.String("path", path),
				slog.Any("error", err))
			result.Skipped = append(result.Skipped, path)
			continue
		}
		if !generated.Success {
			result.Skipped = append(result.Skipped, path)
			continue
		}
		result.Generated = append(result.Generated, path)
	}
	return result, nil
}

// GetHeatmaps returns the stored heatmaps for a project, optionally
// filtered to one page path.
func GetHeatmaps(db *gorm.DB, projectID uint, pagePath string) ([]Heatmap, error) {
	query := db.Where("project_id = ?", projectID)
	if pagePath != "" {
		query = query.Where("url_pattern = ?", pagePath)
	}

	var results []Heatmap
	if err := query.Order("date_from DESC, sample_size DESC").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("error loading heatmaps: %w", err)
	}
	return results, nil
}

// viewportGroup collects the page views sharing one exact viewport size.
type viewportGroup struct {
	width   int
	height  int
	members []tracking.PageView
}

// selectViewportGroup buckets page views by exact viewport dimensions and
// returns the most populated bucket, or nil when no page view carries
// viewport data. Ties keep the earliest-seen bucket.
func selectViewportGroup(pageViews []tracking.PageView) *viewportGroup {
	groups := make(map[[2]int]*viewportGroup)
	var order [][2]int

	for _, pageView := range pageViews {
		if pageView.ViewportWidth == nil || pageView.ViewportHeight == nil {
			continue
		}
		if *pageView.ViewportWidth <= 0 || *pageView.ViewportHeight <= 0 {
			continue
		}

		key := [2]int{*pageView.ViewportWidth, *pageView.ViewportHeight}
		group, ok := groups[key]
		if !ok {
			group = &viewportGroup{width: key[0], height: key[1]}
			groups[key] = group
			order = append(order, key)
		}
		group.members = append(group.members, pageView)
	}

	var best *viewportGroup
	for _, key := range order {
		group := groups[key]
		if best == nil || len(group.members) > len(best.members) {
			best = group
		}
	}
	return best
}

// synthesizeClickPoints fabricates click coordinates from each page view's
// click counter. Y tracks how far the visitor scrolled; X spreads the
// points over the central half of the viewport, where page content sits on
// typical layouts.
func synthesizeClickPoints(group *viewportGroup) []Point {
	var points []Point
	for _, pageView := range group.members {
		clicks := pageView.ClicksCount
		if clicks <= 0 {
			continue
		}
		if clicks > MaxSyntheticClicksPerView {
			clicks = MaxSyntheticClicksPerView
		}

		y := scrollY(group.height, pageView.ScrollDepthPercentage)
		for i := 0; i < clicks; i++ {
			points = append(points, Point{X: bandX(group.width, i, clicks), Y: y, Count: 1})
		}
	}
	return points
}

// synthesizeScrollPoints reports, for each quarter-depth milestone, how
// many page views scrolled at least that far.
func synthesizeScrollPoints(group *viewportGroup) []Point {
	milestones := []int{25, 50, 75, 100}

	var points []Point
	for _, milestone := range milestones {
		count := 0
		for _, pageView := range group.members {
			if pageView.ScrollDepthPercentage >= milestone {
				count++
			}
		}
		if count == 0 {
			continue
		}
		points = append(points, Point{
			X:     group.width / 2,
			Y:     group.height * milestone / 100,
			Count: count,
		})
	}
	return points
}

// synthesizeAttentionPoints weights each page view's deepest scroll
// position by its dwell time, capped so one marathon tab does not swamp
// the layer.
func synthesizeAttentionPoints(group *viewportGroup) []Point {
	const maxWeightSeconds = 300

	var points []Point
	for _, pageView := range group.members {
		weight := pageView.DurationSeconds
		if weight <= 0 {
			continue
		}
		if weight > maxWeightSeconds {
			weight = maxWeightSeconds
		}
		points = append(points, Point{
			X:     group.width / 2,
			Y:     scrollY(group.height, pageView.ScrollDepthPercentage),
			Count: weight,
		})
	}
	return points
}

// MergePoints coalesces points lying within radius pixels of each other,
// summing their counts. Greedy first-wins merging: each point joins the
// first already-merged point it is close to, keeping that point's
// coordinates.
func MergePoints(points []Point, radius float64) []Point {
	merged := make([]Point, 0, len(points))
	for _, point := range points {
		absorbed := false
		for i := range merged {
			dx := float64(point.X - merged[i].X)
			dy := float64(point.Y - merged[i].Y)
			if math.Sqrt(dx*dx+dy*dy) <= radius {
				merged[i].Count += point.Count
				absorbed = true
				break
			}
		}
		if !absorbed {
			merged = append(merged, point)
		}
	}
	return merged
}

func scrollY(viewportHeight, scrollDepthPercentage int) int {
	if scrollDepthPercentage < 0 {
		scrollDepthPercentage = 0
	}
	if scrollDepthPercentage > 100 {
		scrollDepthPercentage = 100
	}
	return viewportHeight * scrollDepthPercentage / 100
}

// bandX spreads index i of n points evenly across the central half of the
// viewport width.
func bandX(viewportWidth, i, n int) int {
	bandStart := viewportWidth / 4
	bandWidth := viewportWidth / 2
	if n <= 1 {
		return bandStart + bandWidth/2
	}
	return bandStart + bandWidth*i/(n-1)
}

func upsertHeatmap(dbManager cartridge.DBManager, logger *slog.Logger, heatmap *Heatmap, clickPoints, scrollPoints, attentionPoints []Point) (*Heatmap, error) {
	clickData, err := encodePoints(clickPoints)
	if err != nil {
		return nil, fmt.Errorf("error encoding click data: %w", err)
	}
	scrollData, err := encodePoints(scrollPoints)
	if err != nil {
		return nil, fmt.Errorf("error encoding scroll data: %w", err)
	}
	attentionData, err := encodePoints(attentionPoints)
	if err != nil {
		return nil, fmt.Errorf("error encoding attention data: %w", err)
	}

	db := dbManager.GetConnection()
	now := time.Now().UTC()
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Exec(`
            INSERT INTO heatmaps (
                project_id, url_pattern, viewport_width, viewport_height,
                click_data, scroll_data, attention_data,
                sample_size, date_from, date_to, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(project_id, url_pattern, viewport_width, viewport_height, date_from) DO UPDATE SET
                click_data = excluded.click_data,
                scroll_data = excluded.scroll_data,
                attention_data = excluded.attention_data,
                sample_size = excluded.sample_size,
                date_to = excluded.date_to,
                updated_at = excluded.updated_at
        `, heatmap.ProjectID, heatmap.URLPattern, heatmap.ViewportWidth, heatmap.ViewportHeight,
			clickData, scrollData, attentionData,
			heatmap.SampleSize, heatmap.DateFrom, heatmap.DateTo, now, now).Error
	})
	if err != nil {
		logger.Error("Failed to store heatmap", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store heatmap: %w", err)
	}

	var stored Heatmap
	err = db.Where("project_id = ? AND url_pattern = ? AND viewport_width = ? AND viewport_height = ? AND date_from = ?",
		heatmap.ProjectID, heatmap.URLPattern, heatmap.ViewportWidth, heatmap.ViewportHeight, heatmap.DateFrom).
		First(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load heatmap after upsert: %w", err)
	}
	return &stored, nil
}

// dayFloor aligns the window start to midnight UTC so regenerations over
// the same logical day hit the same upsert key.
func dayFloor(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
