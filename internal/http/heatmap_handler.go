package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"gemnar/internal/heatmaps"
	"gemnar/internal/timeframe"
)

// GenerateHeatmapParams is the single-page generation request body.
type GenerateHeatmapParams struct {
	PagePath string `json:"page_path"`
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

// HeatmapGenerateAction builds the heatmap for one page path.
// POST /admin/api/projects/:id/heatmaps
//
// Insufficient data is a 200 with success=false, so dashboards can show
// "collect more traffic" instead of an error state.
func HeatmapGenerateAction(ctx *cartridge.Context) error {
	project, err := resolveProjectParam(ctx)
	if err != nil {
		return err
	}

	var params GenerateHeatmapParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}
	if params.PagePath == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "page_path is required"})
	}

	tf := timeframe.ParseRange(params.FromDate, params.ToDate, timeNow())
	result, err := heatmaps.Generate(ctx.DBManager, ctx.Logger, project.ID, params.PagePath, tf)
	if err != nil {
		ctx.Logger.Error("Heatmap generation failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	return ctx.JSON(result)
}

// HeatmapGenerateAllAction refreshes heatmaps for the project's top pages.
// POST /admin/api/projects/:id/heatmaps/generate-all
func HeatmapGenerateAllAction(ctx *cartridge.Context) error {
	project, err := resolveProjectParam(ctx)
	if err != nil {
		return err
	}

	tf := timeframe.LastNDays(timeframe.DefaultRangeDays, timeNow())
	result, err := heatmaps.GenerateAll(ctx.DBManager, ctx.Logger, project.ID, tf)
	if err != nil {
		ctx.Logger.Error("Batch heatmap generation failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	return ctx.JSON(fiber.Map{
		"success":   true,
		"generated": result.Generated,
		"skipped":   result.Skipped,
	})
}

// HeatmapsIndexAction lists stored heatmaps, optionally for one path.
// GET /admin/api/projects/:id/heatmaps?path=
func HeatmapsIndexAction(ctx *cartridge.Context) error {
	project, err := resolveProjectParam(ctx)
	if err != nil {
		return err
	}

	results, err := heatmaps.GetHeatmaps(ctx.DBManager.GetConnection(), project.ID, ctx.Query("path"))
	if err != nil {
		ctx.Logger.Error("Failed to load heatmaps", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	return ctx.JSON(fiber.Map{"heatmaps": results})
}
