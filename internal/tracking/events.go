package tracking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"gemnar/internal/projects"
)

// PageViewNotFoundError represents an error when a page view token does not
// resolve under the presented tracking code
type PageViewNotFoundError struct {
	Token string
}

func (e *PageViewNotFoundError) Error() string {
	return fmt.Sprintf("page view not found: %s", e.Token)
}

// NewPageViewNotFoundError creates a new PageViewNotFoundError
func NewPageViewNotFoundError(token string) *PageViewNotFoundError {
	return &PageViewNotFoundError{Token: token}
}

// GetOwnedPageView resolves a page view token and verifies it belongs to the
// active project identified by the tracking code. Both an unknown token and
// a token owned by a different project fail the same way.
func GetOwnedPageView(tx *gorm.DB, trackingCode, token string) (*PageView, error) {
	project, err := projects.GetActiveByTrackingCode(tx, trackingCode)
	if err != nil {
		return nil, err
	}

	var pageView PageView
	if err := tx.Where("token = ? AND project_id = ?", token, project.ID).First(&pageView).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewPageViewNotFoundError(token)
		}
		return nil, fmt.Errorf("unexpected error querying page view: %w", err)
	}

	return &pageView, nil
}

// EventInput defines the input required to record an interaction event.
type EventInput struct {
	TrackingCode  string
	PageViewToken string
	EventType     string

	Timestamp time.Time

	ElementTag     string
	ElementClasses string
	ElementID      string
	ElementText    string

	XCoordinate *int
	YCoordinate *int

	Data map[string]interface{}
}

// RecordEvent inserts an event row for the page view and bumps the page
// view's engagement counter when the event type calls for one: clicks feed
// clicks_count, form focus and submit feed form_interactions. Other event
// types are stored without side effects.
func RecordEvent(dbManager cartridge.DBManager, logger *slog.Logger, input *EventInput) (*Event, error) {
	db := dbManager.GetConnection()

	pageView, err := GetOwnedPageView(db, input.TrackingCode, input.PageViewToken)
	if err != nil {
		return nil, err
	}

	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	var dataJSON string
	if len(input.Data) > 0 {
		encoded, err := json.Marshal(input.Data)
		if err != nil {
			logger.Warn("Failed to encode event data", slog.Any("error", err))
		} else {
			dataJSON = string(encoded)
		}
	}

	event := &Event{
		PageViewID:     pageView.ID,
		EventType:      input.EventType,
		Timestamp:      timestamp,
		ElementTag:     input.ElementTag,
		ElementClasses: input.ElementClasses,
		ElementID:      input.ElementID,
		ElementText:    input.ElementText,
		XCoordinate:    input.XCoordinate,
		YCoordinate:    input.YCoordinate,
		Data:           dataJSON,
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return err
		}

		switch input.EventType {
		case EventTypeClick:
			return tx.Model(&PageView{}).Where("id = ?", pageView.ID).
				UpdateColumn("clicks_count", gorm.Expr("clicks_count + 1")).Error
		case EventTypeFormFocus, EventTypeFormSubmit:
			return tx.Model(&PageView{}).Where("id = ?", pageView.ID).
				UpdateColumn("form_interactions", gorm.Expr("form_interactions + 1")).Error
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to record event", slog.Any("error", err))
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	return event, nil
}
