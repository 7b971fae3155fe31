package router

import (
	"fmt"
	"time"

	"github.com/abbasshaikh29/TribeLab/app/controllers"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/env"
	"github.com/abbasshaikh29/TribeLab/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Webhooks are excluded from rate limiting: the gateway controls the
	// cadence and a 429 would only trigger its retry logic.
	app.Post("/api/webhooks/razorpay", controllers.HandleGatewayWebhook)

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage: redis.New(redis.Config{
			Host: env.GetEnv("CACHE_HOST", "localhost"),
			Port: mustAtoi(env.GetEnv("CACHE_PORT", "6379")),
		}),
	}))

	maintenance := api.Group("/maintenance", middleware.RequireMaintenanceSecret())
	maintenance.Get("/run", controllers.HandleMaintenanceRun)
	maintenance.Post("/run", controllers.HandleMaintenanceRun)
	maintenance.Get("/webhook-stats", controllers.HandleWebhookStats)

	billing := api.Group("/billing")
	billing.Post("/subscribe", controllers.HandleCreateSubscription)
	billing.Post("/trial/:slug", controllers.HandleActivateTrial)
	billing.Post("/reactivate/:slug", controllers.HandleReactivateCommunity)

	communities := api.Group("/communities")
	communities.Get("/:slug/access", controllers.HandleCommunityAccessStatus)

	// Everything under a community's namespace is gated on the admin's
	// subscription/trial state.
	gated := communities.Group("/:slug", middleware.RequireCommunityAccess())
	gated.Get("/", controllers.HandleCommunityHome)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func mustAtoi(s string) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 6379
	}
	return n
}
