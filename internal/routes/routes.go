package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/relaygrid/billing-events/internal/handlers"
)

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(
	app *fiber.App,
	webhookHandler *handlers.WebhookHandler,
	eventsHandler *handlers.EventsHandler,
	deliveriesHandler *handlers.DeliveriesHandler,
	healthHandler *handlers.HealthHandler,
) {
	app.Get("/health", healthHandler.HealthCheck)

	// Inbound provider notifications.
	app.Post("/webhooks/provider", webhookHandler.HandleProviderEvent)

	// Audit and operations API.
	api := app.Group("/api/v1")
	{
		api.Get("/events", eventsHandler.GetEvents)
		api.Get("/deliveries", deliveriesHandler.GetAttempts)
		api.Post("/deliveries/:id/replay", deliveriesHandler.ReplayDelivery)
	}
}
