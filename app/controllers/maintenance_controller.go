package controllers

import (
	"github.com/abbasshaikh29/TribeLab/internal/pkg/scheduler"
	"github.com/gofiber/fiber/v2"
)

// HandleMaintenanceRun triggers one maintenance run from an external cron.
// Auth happens in middleware. The run itself always reports success with a
// per-pass summary; individual subscription failures land in errors[].
func HandleMaintenanceRun(c *fiber.Ctx) error {
	result := scheduler.RunMaintenance()
	if result == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success": false,
			"error":   "maintenance already running",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"results": result,
	})
}
