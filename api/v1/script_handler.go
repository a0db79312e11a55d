package v1

import (
	"bytes"
	_ "embed"
	"errors"
	"log/slog"
	"text/template"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"gemnar/internal/projects"
)

//go:embed tracker.js
var trackerTemplate string

// GetTrackingScriptAction serves the client tracking script with the
// project's tracking code baked into the JavaScript text. Unknown or
// disabled tracking codes get a 404, same fail-closed policy as ingestion.
func GetTrackingScriptAction(ctx *cartridge.Context) error {
	trackingCode := ctx.Params("tracking_code")
	if trackingCode == "" {
		return ctx.Status(fiber.StatusNotFound).SendString("Not found")
	}

	db := ctx.DBManager.GetConnection()
	project, err := projects.GetActiveByTrackingCode(db, trackingCode)
	if err != nil {
		var notFound *projects.ProjectNotFoundError
		if errors.As(err, &notFound) {
			return ctx.Status(fiber.StatusNotFound).SendString("Not found")
		}
		ctx.Logger.Error("Failed to resolve tracking code for script", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	tmpl, err := template.New("./api/v1/tracker.js").Parse(trackerTemplate)
	if err != nil {
		ctx.Logger.Error("Failed to parse tracker template", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	var buf bytes.Buffer
	data := map[string]interface{}{
		"BaseURL":      ctx.BaseURL(),
		"TrackingCode": project.TrackingCode,
		"SampleRate":   project.SampleRate,
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		ctx.Logger.Error("Failed to render tracker template", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	content := buf.Bytes()
	etag := generateETag(content)

	if ctx.Get("If-None-Match") == etag {
		return ctx.Status(fiber.StatusNotModified).Send(nil)
	}

	ctx.Set("Content-Type", "application/javascript")
	ctx.Set("Cache-Control", "public, max-age=3600")
	ctx.Set("ETag", etag)
	ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
	return ctx.Send(content)
}
