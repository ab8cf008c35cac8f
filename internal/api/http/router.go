package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/chat-relay/internal/api/http/handlers"
	"github.com/spec-kit/chat-relay/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health             *handlers.HealthHandler
	Webhook            *handlers.WebhookHandler
	Ops                *handlers.OpsHandler
	Tokens             *auth.TokenManager
	WebhookSharedToken string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	webhooks := app.Group("/webhook", auth.RequireWebhookToken(cfg.WebhookSharedToken))
	webhooks.Post("/:provider/message-received", cfg.Webhook.MessageReceived)
	webhooks.Post("/:provider/message-status", cfg.Webhook.MessageStatus)
	webhooks.Post("/platform/message-created", cfg.Webhook.PlatformMessageCreated)

	ops := app.Group("/internal", auth.RequireBearer(cfg.Tokens))
	ops.Get("/queue/stats", cfg.Ops.QueueStats)
	ops.Get("/jobs/failed", cfg.Ops.FailedJobs)
}
