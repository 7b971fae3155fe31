package controllers

import (
	"context"
	"time"

	"github.com/abbasshaikh29/TribeLab/app/models"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/billing"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/database"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type subscribeRequest struct {
	AdminID       uint   `json:"admin_id" validate:"required"`
	CommunitySlug string `json:"community_slug" validate:"required"`
	PlanID        string `json:"plan_id"`
	TotalCount    int    `json:"total_count"`
}

// HandleCreateSubscription bootstraps checkout: it creates the gateway
// customer and subscription for a community admin and stores the local record
// in `created`, waiting for the first charged webhook. Gateway timestamps are
// normalized through the reconciler before touching local state.
func HandleCreateSubscription(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid body"})
	}
	if err := getValidator().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	repo := billing.NewRepository(database.GetDB())
	community, err := repo.GetCommunityBySlug(req.CommunitySlug)
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

	client := billing.NewRazorpayClientFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	customerID, err := client.CreateCustomer(ctx, admin.Name, admin.Email)
	if err != nil {
		log.Errorf("subscribe: create customer for admin %d: %v", req.AdminID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_customer_failed"})
	}

	planID := req.PlanID
	if planID == "" {
		planID = defaultPlanID(ctx, client)
		if planID == "" {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_plan_failed"})
		}
	}

	gw, err := client.CreateSubscription(ctx, planID, customerID, req.TotalCount)
	if err != nil {
		log.Errorf("subscribe: create subscription for admin %d: %v", req.AdminID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_subscription_failed"})
	}

	now := time.Now()
	chargeAt := billing.ReconcileUnix(gw.ChargeAt, now, "subscribe.charge_at")
	startAt := billing.ReconcileUnix(gw.StartAt, now, "subscribe.start_at")

	sub := &models.Subscription{
		GatewaySubscriptionID: gw.ID,
		GatewayPlanID:         planID,
		GatewayCustomerID:     customerID,
		AdminID:               req.AdminID,
		CommunityID:           &community.ID,
		Status:                models.SubscriptionStatusCreated,
		TotalCount:            gw.TotalCount,
		Quantity:              gw.Quantity,
		MaxRetryAttempts:      models.DefaultMaxRetryAttempts,
		ChargeAt:              &chargeAt,
		StartAt:               &startAt,
	}
	if err := repo.SaveSubscription(sub); err != nil {
		log.Errorf("subscribe: save local subscription %s: %v", gw.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_persist_failed"})
	}

	if err := repo.UpdateCommunityProjection(community.ID, map[string]interface{}{
		"subscription_id": sub.ID,
	}); err != nil {
		log.Errorf("subscribe: link subscription %d to community %d: %v", sub.ID, community.ID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"gateway_subscription_id": gw.ID,
		"status":                  sub.Status,
	})
}

// defaultPlanID lazily creates the standard community plan when the caller
// does not supply one.
func defaultPlanID(ctx context.Context, client *billing.RazorpayClient) string {
	id, err := client.CreatePlan(ctx, "TribeLab Community (monthly)", 99900, "INR", "monthly")
	if err != nil {
		log.Errorf("subscribe: create default plan: %v", err)
		return ""
	}
	return id
}

// HandleWebhookStats exposes the Redis webhook counters for ops dashboards.
func HandleWebhookStats(c *fiber.Ctx) error {
	received, rejected, err := counter.Snapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"received": received,
		"rejected": rejected,
	})
}
