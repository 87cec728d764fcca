package handlers

import (
	"time"

	"telemetry-tracker/internal/system"

	"github.com/gofiber/fiber/v2"
)

func Health(env system.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
			"service":   "telemetry-tracker",
			"database":  env.StorageEngineVersion(),
		})
	}
}
