package controllers

import (
	"encoding/json"
	"time"

	"github.com/abbasshaikh29/TribeLab/app/models"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/access"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/billing"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/cache"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/database"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const accessStatusCacheTTL = 30 * time.Second

// TrialPeriod is the admin-scoped free trial length.
const TrialPeriod = 14 * 24 * time.Hour

// HandleCommunityAccessStatus returns the gate's read-only view for UI
// consumption. Responses are cached briefly in Redis since the UI polls this.
func HandleCommunityAccessStatus(c *fiber.Ctx) error {
	slug := c.Params("slug")
	cacheKey := "community:access:" + slug

	if cached, err := cache.Get(cacheKey); err == nil && cached != "" {
		c.Set("Content-Type", "application/json")
		return c.Status(fiber.StatusOK).SendString(cached)
	}

	gate := access.NewGate(billing.NewRepository(database.GetDB()))
	status, err := gate.Status(slug)
	if err != nil {
		log.Errorf("access status for %q: %v", slug, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_lookup_failed"})
	}

	if buf, err := json.Marshal(status); err == nil {
		if cerr := cache.Set(cacheKey, string(buf), accessStatusCacheTTL); cerr != nil {
			log.Debugf("access status cache for %q: %v", slug, cerr)
		}
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

type activateTrialRequest struct {
	AdminID uint `json:"admin_id" validate:"required"`
}

// HandleActivateTrial starts the admin-scoped trial for a community. The
// trial clock lives on the admin, so creating another community cannot grant
// a second trial.
func HandleActivateTrial(c *fiber.Ctx) error {
	slug := c.Params("slug")

	var req activateTrialRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid body"})
	}
	if err := getValidator().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	repo := billing.NewRepository(database.GetDB())
	community, err := repo.GetCommunityBySlug(slug)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "community_not_found"})
	}
	if community.AdminID != req.AdminID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "not the community admin"})
	}

	admin, err := repo.GetUserByID(req.AdminID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "admin_not_found"})
	}

	now := time.Now()
	if admin.HasActiveTrial(now) {
		// Already on trial; idempotent.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "trial_end_date": admin.TrialEndDate})
	}
	if admin.TrialUsed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "trial_already_used"})
	}

	end := now.Add(TrialPeriod)
	admin.TrialActivated = true
	admin.TrialUsed = true
	admin.TrialCancelled = false
	admin.TrialStartDate = &now
	admin.TrialEndDate = &end
	if err := repo.SaveUser(admin); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "trial_activation_failed"})
	}

	if err := repo.UpdateCommunityProjection(community.ID, map[string]interface{}{
		"payment_status": models.PaymentStatusTrial,
		"trial_end_date": &end,
	}); err != nil {
		log.Errorf("trial projection for community %d: %v", community.ID, err)
	}

	// Drop the cached gate status so the UI sees the trial immediately.
	if err := cache.Delete("community:access:" + slug); err != nil {
		log.Debugf("trial cache invalidation for %q: %v", slug, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "trial_end_date": &end})
}

// HandleCommunityHome is a representative gated resource: reaching it at all
// means the access middleware let the request through.
func HandleCommunityHome(c *fiber.Ctx) error {
	slug := c.Params("slug")

	repo := billing.NewRepository(database.GetDB())
	community, err := repo.GetCommunityBySlug(slug)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "community_not_found"})
	}
	return c.Status(fiber.StatusOK).JSON(community)
}

// HandleReactivateCommunity restores a suspended community whose subscription
// is active again, e.g. after manual gateway intervention. Idempotent.
func HandleReactivateCommunity(c *fiber.Ctx) error {
	slug := c.Params("slug")

	db := database.GetDB()
	svc := billing.NewServiceFromDB(db, nil)
	if err := svc.ReactivateCommunity(slug); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reactivation_failed", "message": err.Error()})
	}

	if err := cache.Delete("community:access:" + slug); err != nil {
		log.Debugf("reactivation cache invalidation for %q: %v", slug, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
