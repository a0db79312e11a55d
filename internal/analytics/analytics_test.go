package analytics_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gemnar/internal/analytics"
	"gemnar/internal/testsupport"
	"gemnar/internal/timeframe"
	"gemnar/internal/tracking"
)

func windowAround(now time.Time) *timeframe.TimeFrame {
	return timeframe.LastNDays(30, now)
}

func seedSession(t *testing.T, db *gorm.DB, projectID uint, sessionID string, startedAt time.Time, opts func(*tracking.Session)) tracking.Session {
	t.Helper()
	session := tracking.Session{
		ProjectID:    projectID,
		SessionID:    sessionID,
		DeviceType:   "desktop",
		Browser:      "Chrome",
		OS:           "Linux",
		StartedAt:    startedAt,
		LastActivity: startedAt,
		PageViews:    1,
		IsBounce:     true,
	}
	if opts != nil {
		opts(&session)
	}
	require.NoError(t, db.Create(&session).Error)
	return session
}

func seedPageView(t *testing.T, db *gorm.DB, projectID, sessionID uint, path string, startedAt time.Time, opts func(*tracking.PageView)) tracking.PageView {
	t.Helper()
	pageView := tracking.PageView{
		Token:     fmt.Sprintf("tok-%d-%s-%d", sessionID, path, startedAt.UnixNano()),
		ProjectID: projectID,
		SessionID: sessionID,
		Path:      path,
		URL:       "https://example.com" + path,
		StartedAt: startedAt,
	}
	if opts != nil {
		opts(&pageView)
	}
	require.NoError(t, db.Create(&pageView).Error)
	return pageView
}

func TestGetAverageSessionDuration(t *testing.T) {
	now := time.Now().UTC()

	t.Run("prefers stored positive durations", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		seedSession(t, db, project.ID, "d1", now.Add(-time.Hour), func(s *tracking.Session) { s.DurationSeconds = 100 })
		seedSession(t, db, project.ID, "d2", now.Add(-time.Hour), func(s *tracking.Session) { s.DurationSeconds = 300 })
		// Zero-duration session is "not yet measured" and excluded
		seedSession(t, db, project.ID, "d3", now.Add(-time.Hour), nil)

		avg, err := analytics.GetAverageSessionDuration(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		assert.InDelta(t, 200, avg, 0.01)
	})

	t.Run("falls back to timestamp deltas when no stored duration is usable", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		start := now.Add(-2 * time.Hour)
		seedSession(t, db, project.ID, "f1", start, func(s *tracking.Session) {
			s.LastActivity = start.Add(60 * time.Second)
		})
		seedSession(t, db, project.ID, "f2", start, func(s *tracking.Session) {
			s.LastActivity = start.Add(120 * time.Second)
		})

		avg, err := analytics.GetAverageSessionDuration(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		assert.InDelta(t, 90, avg, 1.0, "Mean of the 60s and 120s deltas")
	})

	t.Run("reports zero when neither source has data", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		avg, err := analytics.GetAverageSessionDuration(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		assert.Zero(t, avg)
	})
}

func TestGetBounceRate(t *testing.T) {
	now := time.Now().UTC()

	t.Run("computes percentage over sessions in window", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		seedSession(t, db, project.ID, "b1", now.Add(-time.Hour), nil)
		seedSession(t, db, project.ID, "b2", now.Add(-time.Hour), nil)
		seedSession(t, db, project.ID, "b3", now.Add(-time.Hour), func(s *tracking.Session) {
			s.IsBounce = false
			s.PageViews = 3
		})
		seedSession(t, db, project.ID, "b4", now.Add(-time.Hour), func(s *tracking.Session) {
			s.IsBounce = false
			s.PageViews = 2
		})

		rate, err := analytics.GetBounceRate(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		assert.InDelta(t, 50, rate, 0.01)
	})

	t.Run("zero without sessions", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)

		rate, err := analytics.GetBounceRate(dbManager.GetConnection(), analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		assert.Zero(t, rate)
	})
}

func TestGetAverageLoadTime(t *testing.T) {
	now := time.Now().UTC()

	t.Run("bounded sample wins when available", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()
		session := seedSession(t, db, project.ID, "lt1", now.Add(-time.Hour), nil)

		lt1, lt2, huge := 400, 600, 95000
		seedPageView(t, db, project.ID, session.ID, "/", now.Add(-time.Hour), func(pv *tracking.PageView) { pv.LoadTimeMs = &lt1 })
		seedPageView(t, db, project.ID, session.ID, "/a", now.Add(-time.Hour), func(pv *tracking.PageView) { pv.LoadTimeMs = &lt2 })
		seedPageView(t, db, project.ID, session.ID, "/b", now.Add(-time.Hour), func(pv *tracking.PageView) { pv.LoadTimeMs = &huge })

		avg, err := analytics.GetAverageLoadTime(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		assert.InDelta(t, 500, avg, 0.01, "The 95s outlier is outside the sane bound")
	})

	t.Run("relaxes the upper bound when all samples exceed it", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()
		session := seedSession(t, db, project.ID, "lt2", now.Add(-time.Hour), nil)

		huge := 60000
		seedPageView(t, db, project.ID, session.ID, "/", now.Add(-time.Hour), func(pv *tracking.PageView) { pv.LoadTimeMs = &huge })

		avg, err := analytics.GetAverageLoadTime(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		assert.InDelta(t, 60000, avg, 0.01)
	})

	t.Run("zero when no page view has a load time", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()
		session := seedSession(t, db, project.ID, "lt3", now.Add(-time.Hour), nil)
		seedPageView(t, db, project.ID, session.ID, "/", now.Add(-time.Hour), nil)

		avg, err := analytics.GetAverageLoadTime(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		assert.Zero(t, avg)
	})
}

func TestGetTopPages(t *testing.T) {
	now := time.Now().UTC()

	t.Run("orders by views and caps at the limit", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()
		session := seedSession(t, db, project.ID, "tp1", now.Add(-time.Hour), nil)

		for i := 0; i < 12; i++ {
			path := fmt.Sprintf("/page-%02d", i)
			for j := 0; j <= i; j++ {
				seedPageView(t, db, project.ID, session.ID, path, now.Add(-time.Hour), nil)
			}
		}

		pages, err := analytics.GetTopPages(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		require.Len(t, pages, 10)
		assert.Equal(t, "/page-11", pages[0].Path)
		assert.EqualValues(t, 12, pages[0].Views)
		assert.Equal(t, "/page-02", pages[9].Path)
	})
}

func TestGetDailyTraffic(t *testing.T) {
	t.Run("grouped query matches a naive per-day loop", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		now := time.Now().UTC()
		tf := timeframe.LastNDays(6, now)

		// Sessions spread unevenly across the window, including empty days
		for _, offset := range []int{0, 0, 1, 3, 3, 3, 5} {
			startedAt := now.AddDate(0, 0, -offset)
			session := seedSession(t, db, project.ID, fmt.Sprintf("dt-%d-%d", offset, time.Now().UnixNano()), startedAt, nil)
			seedPageView(t, db, project.ID, session.ID, "/", startedAt, nil)
		}

		traffic, err := analytics.GetDailyTraffic(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: tf,
		})
		require.NoError(t, err)
		require.Len(t, traffic.Sessions, len(tf.DayKeys()))

		// Naive form: one COUNT query per calendar day
		for _, point := range traffic.Sessions {
			day, parseErr := time.Parse("2006-01-02", point.Date)
			require.NoError(t, parseErr)
			dayEnd := day.Add(24*time.Hour - time.Nanosecond)

			var naive int64
			require.NoError(t, db.Model(&tracking.Session{}).
				Where("project_id = ? AND started_at BETWEEN ? AND ? AND started_at BETWEEN ? AND ?",
					project.ID, day, dayEnd, tf.From, tf.To).
				Count(&naive).Error)
			assert.EqualValues(t, naive, point.Count, "Day %s", point.Date)
		}
	})
}

func TestGetExitRate(t *testing.T) {
	now := time.Now().UTC()

	t.Run("window query matches a naive per-session computation", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		// Three sessions that saw /pricing: two exit on it, one moves on
		layouts := [][]string{
			{"/", "/pricing"},
			{"/pricing"},
			{"/pricing", "/signup"},
			{"/", "/about"}, // never saw the page
		}
		for i, paths := range layouts {
			session := seedSession(t, db, project.ID, fmt.Sprintf("er-%d", i), now.Add(-time.Hour), nil)
			for j, path := range paths {
				seedPageView(t, db, project.ID, session.ID, path, now.Add(-time.Hour).Add(time.Duration(j)*time.Minute), nil)
			}
		}

		params := analytics.ProjectScopedQueryParams{ProjectID: project.ID, TimeFrame: windowAround(now)}
		result, err := analytics.GetExitRate(db, params, "/pricing")
		require.NoError(t, err)

		assert.EqualValues(t, 3, result.SessionsWithPage)
		assert.EqualValues(t, 2, result.ExitSessions)
		assert.InDelta(t, 66.66, result.ExitRate, 0.1)

		// Naive form: walk each session and inspect its latest page view
		var sessionIDs []uint
		require.NoError(t, db.Model(&tracking.PageView{}).Distinct("session_id").
			Where("project_id = ? AND path = ?", project.ID, "/pricing").
			Pluck("session_id", &sessionIDs).Error)
		require.EqualValues(t, result.SessionsWithPage, len(sessionIDs))

		var naiveExits int64
		for _, sessionID := range sessionIDs {
			var latest tracking.PageView
			require.NoError(t, db.Where("session_id = ?", sessionID).
				Order("started_at DESC, id DESC").First(&latest).Error)
			if latest.Path == "/pricing" {
				naiveExits++
			}
		}
		assert.EqualValues(t, naiveExits, result.ExitSessions)
	})

	t.Run("zero sessions yields zero rate", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)

		result, err := analytics.GetExitRate(dbManager.GetConnection(), analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		}, "/nowhere")
		require.NoError(t, err)
		assert.Zero(t, result.ExitRate)
	})
}

func TestGetFunnel(t *testing.T) {
	now := time.Now().UTC()

	t.Run("drop-off is the complement of each step's own conversion", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		// 4 sessions: all land, 2 view a product page, 1 converts
		journeys := [][]string{
			{"/"},
			{"/", "/pricing"},
			{"/", "/pricing", "/signup"},
			{"/"},
		}
		for i, paths := range journeys {
			session := seedSession(t, db, project.ID, fmt.Sprintf("fn-%d", i), now.Add(-time.Hour), nil)
			for j, path := range paths {
				seedPageView(t, db, project.ID, session.ID, path, now.Add(-time.Hour).Add(time.Duration(j)*time.Minute), nil)
			}
		}

		steps, err := analytics.GetFunnel(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		require.Len(t, steps, 4)

		assert.EqualValues(t, 4, steps[0].Sessions)
		assert.InDelta(t, 100, steps[0].ConversionRate, 0.01)
		assert.Zero(t, steps[0].DropOffRate, "Landing step has no drop-off")

		assert.EqualValues(t, 2, steps[1].Sessions)
		assert.InDelta(t, 50, steps[1].ConversionRate, 0.01)
		assert.InDelta(t, 50, steps[1].DropOffRate, 0.01)

		assert.EqualValues(t, 1, steps[3].Sessions)
		assert.InDelta(t, 25, steps[3].ConversionRate, 0.01)
		assert.InDelta(t, 75, steps[3].DropOffRate, 0.01)
	})
}

func TestGetGoalConversion(t *testing.T) {
	now := time.Now().UTC()

	t.Run("counts distinct sessions reaching any goal path", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		goalSession := seedSession(t, db, project.ID, "g1", now.Add(-time.Hour), nil)
		seedPageView(t, db, project.ID, goalSession.ID, "/thank-you", now.Add(-time.Hour), nil)
		seedPageView(t, db, project.ID, goalSession.ID, "/success", now.Add(-50*time.Minute), nil)

		other := seedSession(t, db, project.ID, "g2", now.Add(-time.Hour), nil)
		seedPageView(t, db, project.ID, other.ID, "/", now.Add(-time.Hour), nil)

		conversion, err := analytics.GetGoalConversion(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1, conversion.GoalSessions, "Two goal pages in one session count once")
		assert.EqualValues(t, 2, conversion.TotalSessions)
		assert.InDelta(t, 50, conversion.ConversionRate, 0.01)
	})
}

func TestGetBreakdowns(t *testing.T) {
	now := time.Now().UTC()

	t.Run("browser breakdown caps at five entries", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		browsers := []string{"Chrome", "Firefox", "Safari", "Edge", "Opera", "Brave", "Vivaldi"}
		for i, browser := range browsers {
			for j := 0; j <= i; j++ {
				seedSession(t, db, project.ID, fmt.Sprintf("br-%d-%d", i, j), now.Add(-time.Hour), func(s *tracking.Session) {
					s.Browser = browser
				})
			}
		}

		results, err := analytics.GetBrowserBreakdown(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		require.Len(t, results, 5)
		assert.Equal(t, "Vivaldi", results[0].Name)
		assert.EqualValues(t, 7, results[0].Count)
	})

	t.Run("country breakdown omits unresolved sessions", func(t *testing.T) {
		dbManager, _, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()

		seedSession(t, db, project.ID, "co-1", now.Add(-time.Hour), func(s *tracking.Session) { s.Country = "DE" })
		seedSession(t, db, project.ID, "co-2", now.Add(-time.Hour), func(s *tracking.Session) { s.Country = "DE" })
		seedSession(t, db, project.ID, "co-3", now.Add(-time.Hour), nil)

		results, err := analytics.GetCountryBreakdown(db, analytics.ProjectScopedQueryParams{
			ProjectID: project.ID, TimeFrame: windowAround(now),
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "DE", results[0].Name)
		assert.EqualValues(t, 2, results[0].Count)
	})
}
