package heatmaps_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gemnar/internal/heatmaps"
	"gemnar/internal/testsupport"
	"gemnar/internal/timeframe"
	"gemnar/internal/tracking"
)

func seedHeatmapPageView(t *testing.T, db *gorm.DB, projectID uint, path string, viewport *[2]int, clicks, scrollDepth, durationSeconds int) {
	t.Helper()

	session := tracking.Session{
		ProjectID:    projectID,
		SessionID:    fmt.Sprintf("hm-%d", time.Now().UnixNano()),
		StartedAt:    time.Now().UTC().Add(-time.Hour),
		LastActivity: time.Now().UTC().Add(-time.Hour),
		PageViews:    1,
		IsBounce:     true,
	}
	require.NoError(t, db.Create(&session).Error)

	pageView := tracking.PageView{
		Token:                 fmt.Sprintf("hm-tok-%d", time.Now().UnixNano()),
		ProjectID:             projectID,
		SessionID:             session.ID,
		Path:                  path,
		URL:                   "https://example.com" + path,
		StartedAt:             time.Now().UTC().Add(-time.Hour),
		ClicksCount:           clicks,
		ScrollDepthPercentage: scrollDepth,
		DurationSeconds:       durationSeconds,
	}
	if viewport != nil {
		width, height := viewport[0], viewport[1]
		pageView.ViewportWidth = &width
		pageView.ViewportHeight = &height
	}
	require.NoError(t, db.Create(&pageView).Error)
}

func TestGenerate(t *testing.T) {
	window := timeframe.LastNDays(30, time.Now().UTC())

	t.Run("fails below the page view threshold", func(t *testing.T) {
		dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		for i := 0; i < 4; i++ {
			seedHeatmapPageView(t, db, project.ID, "/landing", &[2]int{1920, 1080}, 3, 50, 60)
		}

		result, err := heatmaps.Generate(dbManager, logger, project.ID, "/landing", window)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, heatmaps.MsgNotEnoughPageViews, result.Message)
		assert.Nil(t, result.Heatmap)
	})

	t.Run("fails when no page view reported a viewport", func(t *testing.T) {
		dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		for i := 0; i < 6; i++ {
			seedHeatmapPageView(t, db, project.ID, "/landing", nil, 3, 50, 60)
		}

		result, err := heatmaps.Generate(dbManager, logger, project.ID, "/landing", window)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, heatmaps.MsgNoViewportData, result.Message)
	})

	t.Run("succeeds at the threshold and picks the dominant viewport", func(t *testing.T) {
		dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		for i := 0; i < 5; i++ {
			seedHeatmapPageView(t, db, project.ID, "/landing", &[2]int{1920, 1080}, 2, 75, 60)
		}
		// Minority viewport should not win
		for i := 0; i < 2; i++ {
			seedHeatmapPageView(t, db, project.ID, "/landing", &[2]int{390, 844}, 2, 75, 60)
		}

		result, err := heatmaps.Generate(dbManager, logger, project.ID, "/landing", window)
		require.NoError(t, err)
		require.True(t, result.Success)
		require.NotNil(t, result.Heatmap)

		assert.Equal(t, 1920, result.Heatmap.ViewportWidth)
		assert.Equal(t, 1080, result.Heatmap.ViewportHeight)
		assert.Equal(t, 5, result.Heatmap.SampleSize)
		assert.Equal(t, "/landing", result.Heatmap.URLPattern)

		clickPoints, err := result.Heatmap.ClickPoints()
		require.NoError(t, err)
		require.NotEmpty(t, clickPoints)

		totalClicks := 0
		for _, point := range clickPoints {
			totalClicks += point.Count
			assert.Equal(t, 1080*75/100, point.Y)
		}
		assert.Equal(t, 10, totalClicks, "5 page views with 2 clicks each")

		scrollPoints, err := result.Heatmap.ScrollPoints()
		require.NoError(t, err)
		require.Len(t, scrollPoints, 3, "Milestones 25, 50, 75 reached; 100 not")
		for _, point := range scrollPoints {
			assert.Equal(t, 5, point.Count)
		}
	})

	t.Run("regeneration updates the existing row in place", func(t *testing.T) {
		dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		for i := 0; i < 5; i++ {
			seedHeatmapPageView(t, db, project.ID, "/landing", &[2]int{1920, 1080}, 1, 50, 60)
		}

		first, err := heatmaps.Generate(dbManager, logger, project.ID, "/landing", window)
		require.NoError(t, err)
		require.True(t, first.Success)

		seedHeatmapPageView(t, db, project.ID, "/landing", &[2]int{1920, 1080}, 1, 50, 60)

		second, err := heatmaps.Generate(dbManager, logger, project.ID, "/landing", window)
		require.NoError(t, err)
		require.True(t, second.Success)

		assert.Equal(t, first.Heatmap.ID, second.Heatmap.ID)
		assert.Equal(t, 6, second.Heatmap.SampleSize)

		var count int64
		require.NoError(t, db.Model(&heatmaps.Heatmap{}).
			Where("project_id = ?", project.ID).Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})

	t.Run("ignores page views outside the window and on other paths", func(t *testing.T) {
		dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		for i := 0; i < 3; i++ {
			seedHeatmapPageView(t, db, project.ID, "/landing", &[2]int{1920, 1080}, 1, 50, 60)
		}
		for i := 0; i < 5; i++ {
			seedHeatmapPageView(t, db, project.ID, "/other", &[2]int{1920, 1080}, 1, 50, 60)
		}
		// Stale traffic on the target path, outside the window
		staleSession := tracking.Session{
			ProjectID:    project.ID,
			SessionID:    "hm-stale",
			StartedAt:    time.Now().UTC().AddDate(0, 0, -90),
			LastActivity: time.Now().UTC().AddDate(0, 0, -90),
		}
		require.NoError(t, db.Create(&staleSession).Error)
		for i := 0; i < 5; i++ {
			width, height := 1920, 1080
			old := tracking.PageView{
				Token:          fmt.Sprintf("hm-old-%d-%d", i, time.Now().UnixNano()),
				ProjectID:      project.ID,
				SessionID:      staleSession.ID,
				Path:           "/landing",
				StartedAt:      time.Now().UTC().AddDate(0, 0, -90),
				ViewportWidth:  &width,
				ViewportHeight: &height,
			}
			require.NoError(t, db.Create(&old).Error)
		}

		result, err := heatmaps.Generate(dbManager, logger, project.ID, "/landing", window)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, heatmaps.MsgNotEnoughPageViews, result.Message)
	})
}

func TestGenerateAll(t *testing.T) {
	window := timeframe.LastNDays(30, time.Now().UTC())

	t.Run("generates eligible pages and skips thin ones", func(t *testing.T) {
		dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		for i := 0; i < 6; i++ {
			seedHeatmapPageView(t, db, project.ID, "/popular", &[2]int{1920, 1080}, 2, 60, 30)
		}
		// Enough views overall but none carry viewport data
		for i := 0; i < 5; i++ {
			seedHeatmapPageView(t, db, project.ID, "/no-viewport", nil, 2, 60, 30)
		}
		// Below the view threshold entirely
		for i := 0; i < 2; i++ {
			seedHeatmapPageView(t, db, project.ID, "/rare", &[2]int{1920, 1080}, 2, 60, 30)
		}

		result, err := heatmaps.GenerateAll(dbManager, logger, project.ID, window)
		require.NoError(t, err)

		assert.Equal(t, []string{"/popular"}, result.Generated)
		assert.Equal(t, []string{"/no-viewport"}, result.Skipped)

		stored, err := heatmaps.GetHeatmaps(db, project.ID, "/popular")
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, 6, stored[0].SampleSize)
	})
}

func TestMergePoints(t *testing.T) {
	t.Run("coalesces points within the radius", func(t *testing.T) {
		merged := heatmaps.MergePoints([]heatmaps.Point{
			{X: 100, Y: 100, Count: 2},
			{X: 130, Y: 140, Count: 3}, // distance 50, merges
		}, heatmaps.MergeRadiusPx)

		require.Len(t, merged, 1)
		assert.Equal(t, 100, merged[0].X)
		assert.Equal(t, 100, merged[0].Y)
		assert.Equal(t, 5, merged[0].Count)
	})

	t.Run("keeps points just outside the radius separate", func(t *testing.T) {
		merged := heatmaps.MergePoints([]heatmaps.Point{
			{X: 100, Y: 100, Count: 2},
			{X: 151, Y: 100, Count: 3}, // distance 51
		}, heatmaps.MergeRadiusPx)

		require.Len(t, merged, 2)
		assert.Equal(t, 2, merged[0].Count)
		assert.Equal(t, 3, merged[1].Count)
	})

	t.Run("chains onto the first merged point, not transitively", func(t *testing.T) {
		merged := heatmaps.MergePoints([]heatmaps.Point{
			{X: 0, Y: 0, Count: 1},
			{X: 40, Y: 0, Count: 1}, // within 50 of the first
			{X: 80, Y: 0, Count: 1}, // within 50 of the second, not the first
		}, heatmaps.MergeRadiusPx)

		require.Len(t, merged, 2)
		assert.Equal(t, 2, merged[0].Count)
		assert.Equal(t, 1, merged[1].Count)
	})

	t.Run("empty input yields empty output", func(t *testing.T) {
		assert.Empty(t, heatmaps.MergePoints(nil, heatmaps.MergeRadiusPx))
	})
}
