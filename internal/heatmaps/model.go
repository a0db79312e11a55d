// Package heatmaps synthesizes per-page click and scroll heatmaps from the
// engagement counters stored on page views. The points are a statistical
// approximation derived from aggregate counters, not replayed pointer
// positions; raw mouse recordings are kept separately and never feed the
// heatmap today.
package heatmaps

import (
	"encoding/json"
	"time"
)

// Point is one weighted coordinate in a heatmap layer.
type Point struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Count int `json:"count"`
}

// Heatmap stores one generated heatmap for a page path at a specific
// viewport size. At most one row exists per
// (project, url_pattern, viewport_width, viewport_height, date_from);
// regeneration updates the row in place.
type Heatmap struct {
	ID        uint `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID uint `gorm:"not null;index;uniqueIndex:idx_heatmaps_key;constraint:OnDelete:CASCADE" json:"project_id"`

	// URLPattern is an exact page path, not a wildcard pattern.
	URLPattern     string `gorm:"not null;uniqueIndex:idx_heatmaps_key" json:"url_pattern"`
	ViewportWidth  int    `gorm:"not null;uniqueIndex:idx_heatmaps_key" json:"viewport_width"`
	ViewportHeight int    `gorm:"not null;uniqueIndex:idx_heatmaps_key" json:"viewport_height"`

	ClickData     string `gorm:"type:text" json:"click_data"`
	ScrollData    string `gorm:"type:text" json:"scroll_data"`
	AttentionData string `gorm:"type:text" json:"attention_data"`

	// SampleSize is the number of page views in the selected viewport group.
	SampleSize int       `gorm:"default:0" json:"sample_size"`
	DateFrom   time.Time `gorm:"not null;uniqueIndex:idx_heatmaps_key" json:"date_from"`
	DateTo     time.Time `gorm:"not null" json:"date_to"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClickPoints decodes the stored click layer.
func (h *Heatmap) ClickPoints() ([]Point, error) {
	return decodePoints(h.ClickData)
}

// ScrollPoints decodes the stored scroll layer.
func (h *Heatmap) ScrollPoints() ([]Point, error) {
	return decodePoints(h.ScrollData)
}

// AttentionPoints decodes the stored attention layer.
func (h *Heatmap) AttentionPoints() ([]Point, error) {
	return decodePoints(h.AttentionData)
}

func decodePoints(data string) ([]Point, error) {
	if data == "" {
		return []Point{}, nil
	}
	var points []Point
	if err := json.Unmarshal([]byte(data), &points); err != nil {
		return nil, err
	}
	return points, nil
}

func encodePoints(points []Point) (string, error) {
	if points == nil {
		points = []Point{}
	}
	encoded, err := json.Marshal(points)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
