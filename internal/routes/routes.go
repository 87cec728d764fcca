package routes

import (
	"time"

	"telemetry-tracker/internal/handlers"
	"telemetry-tracker/internal/system"

	"github.com/gofiber/fiber/v2"
)

const APIPrefix = "/telemetry-tracker/v1"

func SetupRoutes(app *fiber.App, env system.Provider, activeWindow time.Duration) {
	app.Get("/health", handlers.Health(env))

	api := app.Group(APIPrefix)
	api.Post("/track", handlers.Track(env))
	api.Get("/plugins", handlers.ListPlugins)
	api.Get("/plugins/:plugin/stats", handlers.PluginStats(activeWindow))
}
