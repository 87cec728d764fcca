package handlers

import (
	"errors"
	"net/url"
	"time"

	"telemetry-tracker/internal/services"

	"github.com/gofiber/fiber/v2"
)

func ListPlugins(c *fiber.Ctx) error {
	plugins, err := services.ListPlugins(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return c.JSON(fiber.Map{"success": true, "data": plugins})
}

func PluginStats(activeWindow time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := url.PathUnescape(c.Params("plugin"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid plugin"})
		}
		plugin := sanitizeText(raw)
		if plugin == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid plugin"})
		}

		stats, err := services.GetPluginStats(c.UserContext(), plugin, activeWindow)
		if errors.Is(err, services.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "Plugin not found"})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
		}

		return c.JSON(fiber.Map{"success": true, "data": stats})
	}
}
