// Package http holds the admin API handlers: project management,
// dashboards and heatmap generation.
package http

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"gemnar/internal/projects"
)

func timeNow() time.Time {
	return time.Now().UTC()
}

// ProjectsIndexAction lists all projects with their trailing-30-day page
// view counts. GET /admin/api/projects
func ProjectsIndexAction(ctx *cartridge.Context) error {
	stats, err := projects.GetProjectsWithStats(ctx.DBManager.GetConnection(), 30)
	if err != nil {
		ctx.Logger.Error("Failed to list projects", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	return ctx.JSON(fiber.Map{"projects": stats})
}

// CreateProjectParams is the setup-flow request body.
type CreateProjectParams struct {
	BrandName  string `json:"brand_name"`
	WebsiteURL string `json:"website_url"`

	RecordMouseMovements *bool    `json:"record_mouse_movements"`
	RecordClicks         *bool    `json:"record_clicks"`
	RecordFormInputs     *bool    `json:"record_form_inputs"`
	RecordScrolls        *bool    `json:"record_scrolls"`
	SampleRate           *float64 `json:"sample_rate"`
}

// ProjectCreateAction registers a new project and returns its generated
// tracking code. POST /admin/api/projects
func ProjectCreateAction(ctx *cartridge.Context) error {
	var params CreateProjectParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	params.BrandName = strings.TrimSpace(params.BrandName)
	params.WebsiteURL = strings.TrimSpace(params.WebsiteURL)
	if params.BrandName == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "brand_name is required"})
	}
	if params.WebsiteURL == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "website_url is required"})
	}

	project := projects.Project{
		BrandName:  params.BrandName,
		WebsiteURL: params.WebsiteURL,
		IsActive:   true,

		RecordMouseMovements: boolOrDefault(params.RecordMouseMovements, true),
		RecordClicks:         boolOrDefault(params.RecordClicks, true),
		RecordFormInputs:     boolOrDefault(params.RecordFormInputs, false),
		RecordScrolls:        boolOrDefault(params.RecordScrolls, true),
		SampleRate:           sampleRateOrDefault(params.SampleRate),
	}

	if err := projects.CreateProject(ctx.DBManager.GetConnection(), &project); err != nil {
		ctx.Logger.Error("Failed to create project", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"project": project,
	})
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func sampleRateOrDefault(value *float64) float64 {
	if value == nil {
		return 1.0
	}
	rate := *value
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}
