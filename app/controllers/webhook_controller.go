package controllers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/abbasshaikh29/TribeLab/internal/pkg/billing"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/database"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/env"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/metrics/counter"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/notify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleGatewayWebhook ingests signed gateway events. Response contract:
// 400 only for a bad signature (no state mutation happens in that case),
// 5xx only when the datastore is down so the gateway redelivers later,
// 200 for everything else including unknown events and untracked
// subscriptions.
func HandleGatewayWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Razorpay-Signature"))
	secret := env.GetEnv("RAZORPAY_WEBHOOK_SECRET", "")

	if !billing.VerifyWebhookSignature(rawBody, signature, secret) {
		log.Warnf("webhook: invalid signature from %s", c.IP())
		if err := counter.AddWebhookRejected(); err != nil {
			log.Debugf("webhook: rejected counter: %v", err)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	if err := counter.AddWebhookReceived(webhookEventType(rawBody)); err != nil {
		log.Debugf("webhook: received counter: %v", err)
	}

	db := database.GetDB()
	svc := billing.NewServiceFromDB(db, notify.NewDispatcher(billing.NewRepository(db)))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := svc.ProcessEvent(ctx, rawBody); err != nil {
		// Datastore unreachable; ask the gateway to redeliver.
		log.Errorf("webhook: processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// webhookEventType peeks at the event type for metrics; the service re-parses
// the body properly.
func webhookEventType(rawBody []byte) string {
	var e struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(rawBody, &e); err != nil || e.Event == "" {
		return "unknown"
	}
	return e.Event
}
