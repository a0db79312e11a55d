package projects

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectNotFoundError represents an error when no active project matches a
// tracking code
type ProjectNotFoundError struct {
	TrackingCode string
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("no active project for tracking code: %s", e.TrackingCode)
}

// NewProjectNotFoundError creates a new ProjectNotFoundError
func NewProjectNotFoundError(trackingCode string) *ProjectNotFoundError {
	return &ProjectNotFoundError{TrackingCode: trackingCode}
}

// Project represents a tracked website property
type Project struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	BrandName    string `gorm:"not null" json:"brand_name"`
	TrackingCode string `gorm:"uniqueIndex;not null" json:"tracking_code"`
	WebsiteURL   string `gorm:"not null" json:"website_url"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`

	// Recording feature toggles
	RecordMouseMovements bool `gorm:"default:true" json:"record_mouse_movements"`
	RecordClicks         bool `gorm:"default:true" json:"record_clicks"`
	RecordFormInputs     bool `gorm:"default:false" json:"record_form_inputs"`
	RecordScrolls        bool `gorm:"default:true" json:"record_scrolls"`

	// Fraction of visitors the client script samples into tracking, 0.0 to 1.0.
	// Enforced client-side only.
	SampleRate float64 `gorm:"default:1.0" json:"sample_rate"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetActiveByTrackingCode resolves a tracking code to its active project.
// Unknown codes and disabled projects both fail closed with a
// ProjectNotFoundError.
func GetActiveByTrackingCode(tx *gorm.DB, trackingCode string) (*Project, error) {
	trackingCode = strings.TrimSpace(trackingCode)
	if trackingCode == "" {
		return nil, NewProjectNotFoundError(trackingCode)
	}

	var project Project
	if err := tx.Where("tracking_code = ? AND is_active = ?", trackingCode, true).First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewProjectNotFoundError(trackingCode)
		}
		return nil, fmt.Errorf("unexpected error querying project: %w", err)
	}

	return &project, nil
}

// GetProjectByID retrieves a project by its ID
func GetProjectByID(db *gorm.DB, id uint) (*Project, error) {
	var project Project
	if err := db.First(&project, id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// GetAllProjects retrieves all projects
func GetAllProjects(db *gorm.DB) ([]Project, error) {
	var all []Project
	if err := db.Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to get projects: %w", err)
	}
	return all, nil
}

// CreateProject creates a new project, generating its tracking code when the
// caller did not supply one.
func CreateProject(db *gorm.DB, project *Project) error {
	if project.TrackingCode == "" {
		project.TrackingCode = uuid.NewString()
	}
	if project.SampleRate <= 0 || project.SampleRate > 1 {
		project.SampleRate = 1.0
	}
	project.CreatedAt = time.Now().UTC()
	project.UpdatedAt = project.CreatedAt

	return db.Create(project).Error
}

// UpdateProject updates an existing project
func UpdateProject(db *gorm.DB, project *Project) error {
	project.UpdatedAt = time.Now().UTC()
	return db.Save(project).Error
}

// DeleteProject deletes a project by its ID
func DeleteProject(db *gorm.DB, id uint) error {
	result := db.Delete(&Project{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ProjectWithStats represents a project with page view statistics
type ProjectWithStats struct {
	ID            uint      `json:"id"`
	BrandName     string    `json:"brand_name"`
	TrackingCode  string    `json:"tracking_code"`
	WebsiteURL    string    `json:"website_url"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	PageViewCount int64     `json:"page_view_count"`
}

// GetProjectsWithStats retrieves all projects enriched with page view counts
// over the trailing daysBack window.
func GetProjectsWithStats(db *gorm.DB, daysBack int) ([]ProjectWithStats, error) {
	all, err := GetAllProjects(db)
	if err != nil {
		return nil, err
	}

	result := make([]ProjectWithStats, len(all))
	timeLimit := time.Now().UTC().AddDate(0, 0, -daysBack)

	for i, project := range all {
		var pageViewCount int64
		err := db.Table("page_views").
			Where("project_id = ? AND started_at >= ?", project.ID, timeLimit).
			Count(&pageViewCount).Error
		if err != nil {
			// On error, default to 0 but continue
			pageViewCount = 0
		}

		result[i] = ProjectWithStats{
			ID:            project.ID,
			BrandName:     project.BrandName,
			TrackingCode:  project.TrackingCode,
			WebsiteURL:    project.WebsiteURL,
			IsActive:      project.IsActive,
			CreatedAt:     project.CreatedAt,
			PageViewCount: pageViewCount,
		}
	}

	return result, nil
}
