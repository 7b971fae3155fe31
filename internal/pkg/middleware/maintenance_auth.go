package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/abbasshaikh29/TribeLab/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
)

// RequireMaintenanceSecret authenticates the external cron trigger with a
// shared-secret bearer token. A bad token is rejected immediately, no state
// change, no retry scheduled on our side.
func RequireMaintenanceSecret() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := strings.TrimSpace(env.GetEnv("MAINTENANCE_SECRET", ""))
		if secret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "maintenance_disabled", "message": "MAINTENANCE_SECRET is not configured"})
		}

		token := extractBearerToken(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid maintenance token"})
		}
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
