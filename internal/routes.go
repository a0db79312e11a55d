package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "gemnar/api/v1"
	"gemnar/internal/config"
	"gemnar/internal/http"
	"gemnar/internal/http/middleware"
)

// publicCORSConfig is shared by every public tracking endpoint. The
// tracker runs on arbitrary third-party origins, so CORS must stay
// permissive.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API.
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Rate limiting applies in production only; it would interfere with
	// tests and local development
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70 req/min per IP handles legitimate beacon traffic (pageview plus
	// 5s engagement polling) while capping abuse
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// No Sec-Fetch-Site validation: beacons are cross-site by nature and
	// sendBeacon or older agents may omit the header entirely
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		WriteConcurrency:   false,
		CustomMiddleware:   []fiber.Handler{publicRateLimiter},
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	// Script delivery is GET-only, so Sec-Fetch-Site validation never applies
	scriptConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	// Bearer-key auth, no cookie session; server-to-server clients do not
	// send Sec-Fetch-Site
	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.AdminAPIKeyAuth(db, logger),
		},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	// === ROOT ROUTES ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC TRACKING API ===
	publicEndpoints := []struct {
		path    string
		handler func(*cartridge.Context) error
	}{
		{"/api/analytics/pageview", v1.CreatePageViewHandler},
		{"/api/analytics/event", v1.CreateEventHandler},
		{"/api/analytics/update-pageview", v1.UpdatePageViewHandler},
		{"/api/analytics/metrics", v1.CreateMetricsHandler},
		{"/api/analytics/recording", v1.CreateRecordingHandler},
	}
	for _, endpoint := range publicEndpoints {
		srv.Post(endpoint.path, endpoint.handler, publicAPIConfig)
		srv.Options(endpoint.path, func(ctx *cartridge.Context) error {
			return ctx.SendStatus(fiber.StatusNoContent)
		}, publicAPIConfig)
	}

	// === TRACKING SCRIPT ===
	srv.Get("/analytics/:tracking_code/script.js", v1.GetTrackingScriptAction, scriptConfig)

	// === ADMIN API ===
	srv.Get("/admin/api/projects", http.ProjectsIndexAction, adminAPIConfig)
	srv.Post("/admin/api/projects", http.ProjectCreateAction, adminAPIConfig)
	srv.Get("/admin/api/projects/:id/dashboard", http.ProjectDashboardAction, adminAPIConfig)
	srv.Get("/admin/api/projects/:id/pages/exit-rate", http.ProjectExitRateAction, adminAPIConfig)
	srv.Post("/admin/api/projects/:id/heatmaps", http.HeatmapGenerateAction, adminAPIConfig)
	srv.Post("/admin/api/projects/:id/heatmaps/generate-all", http.HeatmapGenerateAllAction, adminAPIConfig)
	srv.Get("/admin/api/projects/:id/heatmaps", http.HeatmapsIndexAction, adminAPIConfig)
}
