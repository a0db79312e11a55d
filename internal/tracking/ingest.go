package tracking

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"gemnar/internal/pkg/geoip"
	"gemnar/internal/pkg/useragent"
	"gemnar/internal/projects"
	"gemnar/internal/settings"
)

// PageViewInput defines the input required to ingest a page view beacon.
type PageViewInput struct {
	TrackingCode string
	SessionID    string
	IPAddress    string
	UserAgent    string

	URL      string
	Title    string
	Referrer string

	ViewportWidth  *int
	ViewportHeight *int
	ScreenWidth    *int
	ScreenHeight   *int

	LoadTimeMs               *int
	DOMContentLoadedMs       *int
	FirstPaintMs             *int
	LargestContentfulPaintMs *int
	FirstInputDelayMs        *int
}

// urlData holds parsed URL components
type urlData struct {
	path        string
	queryParams string
	rawURL      string
}

// IngestPageView resolves the tracking code to an active project, creates or
// bumps the session and inserts the page view, all within one write
// transaction. The returned page view carries the public token the client
// uses on follow-up calls.
func IngestPageView(dbManager cartridge.DBManager, logger *slog.Logger, input *PageViewInput) (*PageView, *Session, error) {
	if input.UserAgent == "" {
		input.UserAgent = "Unknown User Agent"
	}

	db := dbManager.GetConnection()

	project, err := projects.GetActiveByTrackingCode(db, input.TrackingCode)
	if err != nil {
		return nil, nil, err
	}

	excluded, err := settings.IsIPExcluded(input.IPAddress)
	if err != nil {
		logger.Error("Error checking IP exclusion", slog.Any("error", err))
	} else if excluded {
		logger.Debug("Skipping page view for excluded IP", slog.String("ip", input.IPAddress))
		return nil, nil, nil
	}

	pageURL, err := parsePageURL(input.URL)
	if err != nil {
		logger.Warn("Failed to parse URL", slog.Any("error", err), slog.String("url", input.URL))
		return nil, nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	uaInfo := useragent.Classify(input.UserAgent)
	country := geoip.CountryCode(input.IPAddress)
	now := time.Now().UTC()

	var session Session
	pageView := &PageView{
		Token:                    uuid.NewString(),
		ProjectID:                project.ID,
		URL:                      pageURL.rawURL,
		Title:                    input.Title,
		Path:                     pageURL.path,
		QueryParams:              pageURL.queryParams,
		Referrer:                 input.Referrer,
		StartedAt:                now,
		ViewportWidth:            input.ViewportWidth,
		ViewportHeight:           input.ViewportHeight,
		ScreenWidth:              input.ScreenWidth,
		ScreenHeight:             input.ScreenHeight,
		LoadTimeMs:               input.LoadTimeMs,
		DOMContentLoadedMs:       input.DOMContentLoadedMs,
		FirstPaintMs:             input.FirstPaintMs,
		LargestContentfulPaintMs: input.LargestContentfulPaintMs,
		FirstInputDelayMs:        input.FirstInputDelayMs,
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := upsertSession(tx, project.ID, sessionID, input, uaInfo, country, now); err != nil {
			return err
		}

		if err := tx.Where("project_id = ? AND session_id = ?", project.ID, sessionID).
			First(&session).Error; err != nil {
			return fmt.Errorf("failed to load session after upsert: %w", err)
		}

		pageView.SessionID = session.ID
		return tx.Create(pageView).Error
	})
	if err != nil {
		logger.Error("Failed to ingest page view", slog.Any("error", err))
		return nil, nil, fmt.Errorf("failed to ingest page view: %w", err)
	}

	return pageView, &session, nil
}

// upsertSession creates the session row or, when it already exists, bumps
// its activity atomically. The conflict branch only runs for a second or
// later page view, so it can unconditionally clear the bounce flag and
// recompute the clamped duration from the immutable start time.
func upsertSession(tx *gorm.DB, projectID uint, sessionID string, input *PageViewInput, uaInfo useragent.Info, country string, now time.Time) error {
	return tx.Exec(`
        INSERT INTO sessions (
            project_id, session_id, ip_address, user_agent, browser, os,
            device_type, country, referrer, started_at, last_activity,
            duration_seconds, page_views, is_bounce
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, 1)
        ON CONFLICT(project_id, session_id) DO UPDATE SET
            last_activity = excluded.last_activity,
            page_views = sessions.page_views + 1,
            is_bounce = 0,
            duration_seconds = MIN(?, MAX(0, CAST(
                (JULIANDAY(excluded.last_activity) - JULIANDAY(sessions.started_at)) * 86400 AS INTEGER
            )))
    `, projectID, sessionID, input.IPAddress, input.UserAgent,
		uaInfo.Browser, uaInfo.OS, uaInfo.DeviceType, country, input.Referrer,
		now, now, MaxSessionDurationSeconds).Error
}

// parsePageURL parses a page URL into its components
func parsePageURL(urlStr string) (*urlData, error) {
	if urlStr == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	path := parsedURL.Path
	if path == "" {
		path = "/"
	}

	return &urlData{
		path:        path,
		queryParams: parsedURL.RawQuery,
		rawURL:      urlStr,
	}, nil
}
