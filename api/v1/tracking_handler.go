// Package v1 exposes the public tracking API consumed by the embedded
// client script. Every handler fails closed on unknown or disabled
// tracking codes and converts unexpected errors into generic 500 JSON so
// one bad beacon can never take down the ingestion path.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"

	"gemnar/internal/projects"
	"gemnar/internal/tracking"
)

const (
	errInvalidRequest   = "Invalid request"
	errNotFound         = "Not found"
	errInternal         = "Internal server error"
	msgRecordingOff     = "Recording disabled"
	errMissingTracking  = "tracking_code is required"
	errMissingURL       = "url is required"
	errMissingPageView  = "page_view_id is required"
	errMissingEventType = "event_type is required"
)

// CreatePageViewParams mirrors the pageview beacon body.
type CreatePageViewParams struct {
	TrackingCode string `json:"tracking_code"`
	SessionID    string `json:"session_id"`

	URL      string `json:"url"`
	Title    string `json:"title"`
	Referrer string `json:"referrer"`

	// The script also sends user_agent explicitly; the header wins when
	// both are present.
	UserAgent string `json:"user_agent"`

	ViewportWidth  *int `json:"viewport_width"`
	ViewportHeight *int `json:"viewport_height"`
	ScreenWidth    *int `json:"screen_width"`
	ScreenHeight   *int `json:"screen_height"`

	LoadTimeMs               *int `json:"load_time_ms"`
	DOMContentLoadedMs       *int `json:"dom_content_loaded_ms"`
	FirstPaintMs             *int `json:"first_paint_ms"`
	LargestContentfulPaintMs *int `json:"largest_contentful_paint_ms"`
	FirstInputDelayMs        *int `json:"first_input_delay_ms"`
}

// CreatePageViewHandler ingests a pageview beacon, creating or bumping the
// session under the covers.
func CreatePageViewHandler(ctx *cartridge.Context) error {
	var params CreatePageViewParams
	if err := parseBeaconBody(ctx, &params); err != nil {
		return badRequest(ctx, errInvalidRequest)
	}
	if params.TrackingCode == "" {
		return badRequest(ctx, errMissingTracking)
	}
	if params.URL == "" {
		return badRequest(ctx, errMissingURL)
	}

	input := &tracking.PageViewInput{
		TrackingCode: params.TrackingCode,
		SessionID:    params.SessionID,
		IPAddress:    getClientIP(ctx.Ctx),
		UserAgent:    beaconUserAgent(ctx, params.UserAgent),

		URL:      params.URL,
		Title:    params.Title,
		Referrer: params.Referrer,

		ViewportWidth:  params.ViewportWidth,
		ViewportHeight: params.ViewportHeight,
		ScreenWidth:    params.ScreenWidth,
		ScreenHeight:   params.ScreenHeight,

		LoadTimeMs:               params.LoadTimeMs,
		DOMContentLoadedMs:       params.DOMContentLoadedMs,
		FirstPaintMs:             params.FirstPaintMs,
		LargestContentfulPaintMs: params.LargestContentfulPaintMs,
		FirstInputDelayMs:        params.FirstInputDelayMs,
	}

	pageView, session, err := tracking.IngestPageView(ctx.DBManager, ctx.Logger, input)
	if err != nil {
		return handleTrackingError(ctx, err, "Failed to ingest page view")
	}
	if pageView == nil {
		// Excluded IP: acknowledged but not stored
		return ctx.JSON(fiber.Map{"success": true})
	}

	return ctx.JSON(fiber.Map{
		"success":      true,
		"page_view_id": pageView.Token,
		"session_id":   session.SessionID,
	})
}

// CreateEventParams mirrors the interaction event beacon body.
type CreateEventParams struct {
	TrackingCode string `json:"tracking_code"`
	PageViewID   string `json:"page_view_id"`
	EventType    string `json:"event_type"`

	ElementTag     string `json:"element_tag"`
	ElementClasses string `json:"element_classes"`
	ElementID      string `json:"element_id"`
	ElementText    string `json:"element_text"`

	XCoordinate *int `json:"x_coordinate"`
	YCoordinate *int `json:"y_coordinate"`

	Data map[string]interface{} `json:"data"`
}

// CreateEventHandler attaches one interaction event to a page view.
func CreateEventHandler(ctx *cartridge.Context) error {
	var params CreateEventParams
	if err := parseBeaconBody(ctx, &params); err != nil {
		return badRequest(ctx, errInvalidRequest)
	}
	if params.TrackingCode == "" {
		return badRequest(ctx, errMissingTracking)
	}
	if err := requirePageViewID(params.PageViewID); err != nil {
		return badRequest(ctx, err.Error())
	}
	if params.EventType == "" {
		return badRequest(ctx, errMissingEventType)
	}

	event, err := tracking.RecordEvent(ctx.DBManager, ctx.Logger, &tracking.EventInput{
		TrackingCode:   params.TrackingCode,
		PageViewToken:  params.PageViewID,
		EventType:      params.EventType,
		ElementTag:     params.ElementTag,
		ElementClasses: params.ElementClasses,
		ElementID:      params.ElementID,
		ElementText:    params.ElementText,
		XCoordinate:    params.XCoordinate,
		YCoordinate:    params.YCoordinate,
		Data:           params.Data,
	})
	if err != nil {
		return handleTrackingError(ctx, err, "Failed to record event")
	}

	return ctx.JSON(fiber.Map{
		"success":  true,
		"event_id": event.ID,
	})
}

// UpdatePageViewParams mirrors the load-metrics patch body. Absent fields
// stay untouched on the page view.
type UpdatePageViewParams struct {
	TrackingCode string `json:"tracking_code"`
	PageViewID   string `json:"page_view_id"`

	LoadTimeMs               *int `json:"load_time_ms"`
	DOMContentLoadedMs       *int `json:"dom_content_loaded_ms"`
	FirstPaintMs             *int `json:"first_paint_ms"`
	LargestContentfulPaintMs *int `json:"largest_contentful_paint_ms"`
	FirstInputDelayMs        *int `json:"first_input_delay_ms"`
}

// UpdatePageViewHandler patches load-timing fields onto a page view and
// reports which fields were applied.
func UpdatePageViewHandler(ctx *cartridge.Context) error {
	var params UpdatePageViewParams
	if err := parseBeaconBody(ctx, &params); err != nil {
		return badRequest(ctx, errInvalidRequest)
	}
	if params.TrackingCode == "" {
		return badRequest(ctx, errMissingTracking)
	}
	if err := requirePageViewID(params.PageViewID); err != nil {
		return badRequest(ctx, err.Error())
	}

	updated, err := tracking.UpdateLoadMetrics(ctx.DBManager, ctx.Logger, &tracking.LoadMetricsInput{
		TrackingCode:             params.TrackingCode,
		PageViewToken:            params.PageViewID,
		LoadTimeMs:               params.LoadTimeMs,
		DOMContentLoadedMs:       params.DOMContentLoadedMs,
		FirstPaintMs:             params.FirstPaintMs,
		LargestContentfulPaintMs: params.LargestContentfulPaintMs,
		FirstInputDelayMs:        params.FirstInputDelayMs,
	})
	if err != nil {
		return handleTrackingError(ctx, err, "Failed to update page view metrics")
	}

	return ctx.JSON(fiber.Map{
		"success":        true,
		"updated_fields": updated,
	})
}

// MetricsParams mirrors the periodic engagement beacon body.
type MetricsParams struct {
	TrackingCode string `json:"tracking_code"`
	PageViewID   string `json:"page_view_id"`

	DurationSeconds       int  `json:"duration_seconds"`
	ScrollDepthPercentage int  `json:"scroll_depth_percentage"`
	ClicksCount           int  `json:"clicks_count"`
	FormInteractions      int  `json:"form_interactions"`
	IsFinalUpdate         bool `json:"is_final_update"`
}

// CreateMetricsHandler applies an engagement snapshot. The client sends
// its full cumulative state each time, so a lost beacon heals on the next
// one.
func CreateMetricsHandler(ctx *cartridge.Context) error {
	var params MetricsParams
	if err := parseBeaconBody(ctx, &params); err != nil {
		return badRequest(ctx, errInvalidRequest)
	}
	if params.TrackingCode == "" {
		return badRequest(ctx, errMissingTracking)
	}
	if err := requirePageViewID(params.PageViewID); err != nil {
		return badRequest(ctx, err.Error())
	}

	_, err := tracking.ApplyEngagement(ctx.DBManager, ctx.Logger, &tracking.EngagementInput{
		TrackingCode:          params.TrackingCode,
		PageViewToken:         params.PageViewID,
		DurationSeconds:       params.DurationSeconds,
		ScrollDepthPercentage: params.ScrollDepthPercentage,
		ClicksCount:           params.ClicksCount,
		FormInteractions:      params.FormInteractions,
		IsFinalUpdate:         params.IsFinalUpdate,
	})
	if err != nil {
		return handleTrackingError(ctx, err, "Failed to apply engagement metrics")
	}

	return ctx.JSON(fiber.Map{"success": true})
}

// RecordingParams mirrors the mouse-recording upload body. MouseMovements
// stays raw JSON; the server compresses it without inspecting samples.
type RecordingParams struct {
	TrackingCode      string          `json:"tracking_code"`
	PageViewID        string          `json:"page_view_id"`
	MouseMovements    json.RawMessage `json:"mouse_movements"`
	RecordingDuration int             `json:"recording_duration"`
}

// CreateRecordingHandler stores (or replaces) the mouse-movement snapshot
// for a page view. Projects with recording disabled get a success no-op so
// older scripts keep working after the toggle flips.
func CreateRecordingHandler(ctx *cartridge.Context) error {
	var params RecordingParams
	if err := parseBeaconBody(ctx, &params); err != nil {
		return badRequest(ctx, errInvalidRequest)
	}
	if params.TrackingCode == "" {
		return badRequest(ctx, errMissingTracking)
	}
	if err := requirePageViewID(params.PageViewID); err != nil {
		return badRequest(ctx, err.Error())
	}
	if len(params.MouseMovements) == 0 {
		return badRequest(ctx, "mouse_movements is required")
	}

	recording, err := tracking.SaveRecording(ctx.DBManager, ctx.Logger, &tracking.RecordingInput{
		TrackingCode:        params.TrackingCode,
		PageViewToken:       params.PageViewID,
		MouseMovements:      string(params.MouseMovements),
		RecordingDurationMs: params.RecordingDuration,
	})
	if errors.Is(err, tracking.ErrRecordingDisabled) {
		return ctx.JSON(fiber.Map{
			"success": true,
			"message": msgRecordingOff,
		})
	}
	if err != nil {
		return handleTrackingError(ctx, err, "Failed to save recording")
	}

	return ctx.JSON(fiber.Map{
		"success":      true,
		"recording_id": recording.ID,
	})
}

// parseBeaconBody decodes a beacon payload. navigator.sendBeacon posts as
// text/plain, so the content type cannot be trusted for parser selection.
func parseBeaconBody(ctx *cartridge.Context, out interface{}) error {
	body := ctx.Body()
	if len(body) == 0 {
		return fmt.Errorf("empty body")
	}
	return json.Unmarshal(body, out)
}

func beaconUserAgent(ctx *cartridge.Context, fromBody string) string {
	if header := ctx.Get("User-Agent"); header != "" {
		return header
	}
	return fromBody
}

func requirePageViewID(id string) error {
	if id == "" {
		return errors.New(errMissingPageView)
	}
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("page_view_id is malformed")
	}
	return nil
}

func badRequest(ctx *cartridge.Context, message string) error {
	return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": message})
}

// handleTrackingError maps resolution failures to 404 and everything else
// to a generic 500, logging the cause server-side only.
func handleTrackingError(ctx *cartridge.Context, err error, logMessage string) error {
	var projectNotFound *projects.ProjectNotFoundError
	var pageViewNotFound *tracking.PageViewNotFoundError
	if errors.As(err, &projectNotFound) || errors.As(err, &pageViewNotFound) {
		return ctx.Status(http.StatusNotFound).JSON(fiber.Map{"error": errNotFound})
	}

	ctx.Logger.Error(logMessage, slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": errInternal})
}
