// Package tracking implements the ingestion pipeline: sessions, page
// views, interaction events and session recordings.
package tracking

import (
	"time"
)

// Duration clamp bounds. Durations are derived from wall-clock deltas at
// write time, so pathological client clocks cannot push values outside
// these ranges.
const (
	MaxSessionDurationSeconds  = 86400
	MaxPageViewDurationSeconds = 3600
)

// Event types
const (
	EventTypeClick      = "click"
	EventTypeFormSubmit = "form_submit"
	EventTypeFormFocus  = "form_focus"
	EventTypeScroll     = "scroll"
	EventTypeResize     = "resize"
	EventTypeError      = "error"
	EventTypeCustom     = "custom"
)

// Session represents one visitor session on a project. A session is keyed
// by the client-chosen session id, unique per project.
type Session struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID uint   `gorm:"not null;index;uniqueIndex:idx_sessions_project_session;constraint:OnDelete:CASCADE" json:"project_id"`
	SessionID string `gorm:"not null;uniqueIndex:idx_sessions_project_session" json:"session_id"`

	IPAddress  string `json:"ip_address"`
	UserAgent  string `json:"user_agent"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"`
	Country    string `json:"country"`
	Referrer   string `json:"referrer"`

	StartedAt       time.Time `gorm:"not null;index" json:"started_at"`
	LastActivity    time.Time `gorm:"not null" json:"last_activity"`
	DurationSeconds int       `gorm:"default:0" json:"duration_seconds"`
	PageViews       int       `gorm:"default:0" json:"page_views"`
	IsBounce        bool      `gorm:"default:true" json:"is_bounce"`
}

// PageView represents one page load within a session. Token is the opaque
// identifier handed to the client; it is the sole capability needed to post
// events, metrics and recordings for this page view.
type PageView struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Token     string `gorm:"uniqueIndex;not null" json:"token"`
	ProjectID uint   `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"project_id"`
	SessionID uint   `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"session_id"`

	URL         string `json:"url"`
	Title       string `json:"title"`
	Path        string `gorm:"index" json:"path"`
	QueryParams string `json:"query_params"`
	Referrer    string `json:"referrer"`

	StartedAt       time.Time  `gorm:"not null;index" json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	DurationSeconds int        `gorm:"default:0" json:"duration_seconds"`

	// Load performance, all nullable until the browser reports them
	LoadTimeMs               *int `json:"load_time_ms"`
	DOMContentLoadedMs       *int `json:"dom_content_loaded_ms"`
	FirstPaintMs             *int `json:"first_paint_ms"`
	LargestContentfulPaintMs *int `json:"largest_contentful_paint_ms"`
	FirstInputDelayMs        *int `json:"first_input_delay_ms"`

	ViewportWidth  *int `json:"viewport_width"`
	ViewportHeight *int `json:"viewport_height"`
	ScreenWidth    *int `json:"screen_width"`
	ScreenHeight   *int `json:"screen_height"`

	// Engagement counters, driven by the client
	ScrollDepthPercentage int `gorm:"default:0" json:"scroll_depth_percentage"`
	ClicksCount           int `gorm:"default:0" json:"clicks_count"`
	FormInteractions      int `gorm:"default:0" json:"form_interactions"`
}

// Event represents a single interaction beacon attached to a page view.
// Rows are append-only.
type Event struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	PageViewID uint   `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"page_view_id"`
	EventType  string `gorm:"not null;index" json:"event_type"`

	Timestamp time.Time `gorm:"not null" json:"timestamp"`

	ElementTag     string `json:"element_tag"`
	ElementClasses string `json:"element_classes"`
	ElementID      string `json:"element_id"`
	ElementText    string `json:"element_text"`

	XCoordinate *int `json:"x_coordinate"`
	YCoordinate *int `json:"y_coordinate"`

	// Free-form event payload, JSON-encoded
	Data string `json:"data"`
}

// Recording stores the compressed mouse-movement trace for a page view.
// At most one row per page view; re-uploads replace the payload.
type Recording struct {
	ID         uint `gorm:"primaryKey;autoIncrement" json:"id"`
	PageViewID uint `gorm:"uniqueIndex;not null;constraint:OnDelete:CASCADE" json:"page_view_id"`

	MouseMovements      []byte `gorm:"type:blob" json:"-"`
	RecordingDurationMs int    `json:"recording_duration_ms"`
	DataSizeBytes       int    `json:"data_size_bytes"`
	CompressionType     string `gorm:"default:'gzip'" json:"compression_type"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
