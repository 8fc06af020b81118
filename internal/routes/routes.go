package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatdesk-app/chatdesk-backend/internal/flow"
	"github.com/chatdesk-app/chatdesk-backend/internal/handlers"
	"github.com/chatdesk-app/chatdesk-backend/internal/services"
	"github.com/chatdesk-app/chatdesk-backend/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, router *flow.Router, dispatcher services.Dispatcher) {
	flowHandler := handlers.NewFlowHandler(store)
	sessionHandler := handlers.NewSessionHandler(store)
	webhookHandler := handlers.NewWebhookHandler(router, dispatcher)

	app.Get("/health", handlers.HealthCheck)

	// API routes
	api := app.Group("/api")

	// Node type catalog (read-only, for the flow editor)
	api.Get("/node-types", flowHandler.NodeTypes)

	// Flow CRUD
	flows := api.Group("/flows")
	flows.Post("/", flowHandler.CreateFlow)
	flows.Get("/", flowHandler.ListFlows)
	flows.Get("/:id", flowHandler.GetFlow)
	flows.Put("/:id", flowHandler.UpdateFlow)
	flows.Delete("/:id", flowHandler.DeleteFlow)
	flows.Post("/:id/duplicate", flowHandler.DuplicateFlow)
	flows.Post("/:id/toggle", flowHandler.ToggleFlow)

	// Session views + analytics
	sessions := api.Group("/sessions")
	sessions.Get("/", sessionHandler.ListSessions)
	sessions.Get("/stats", sessionHandler.Stats)
	sessions.Get("/:id", sessionHandler.GetSession)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")
	webhooks.Post("/whatsapp/:orgId", webhookHandler.HandleWhatsApp)

	// ========== TEST ROUTES (Development Only) ==========
	app.Post("/test/message", webhookHandler.HandleTest)
}
