package middleware

import (
	"github.com/abbasshaikh29/TribeLab/internal/pkg/access"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/billing"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/database"
	"github.com/gofiber/fiber/v2"
)

// RequireCommunityAccess gates every request into a community's namespace on
// the owning admin's subscription/trial state. Blocked requests get the
// billing redirect hint instead of a raw error; the gate itself fails open on
// infrastructure problems.
func RequireCommunityAccess() fiber.Handler {
	return func(c *fiber.Ctx) error {
		slug := c.Params("slug")
		if slug == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "community slug missing"})
		}

		gate := access.NewGate(billing.NewRepository(database.GetDB()))
		decision := gate.Evaluate(slug)
		if !decision.Allowed {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":    "community_suspended",
				"reason":   decision.Reason,
				"redirect": decision.RedirectHint,
			})
		}

		return c.Next()
	}
}
