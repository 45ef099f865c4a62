package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/relaygrid/billing-events/internal/billing"
	"github.com/relaygrid/billing-events/internal/models"
	"github.com/relaygrid/billing-events/internal/store"
)

// DeliveriesHandler serves the outbound side of the delivery audit log and
// the manual re-send path for abandoned deliveries.
type DeliveriesHandler struct {
	DB        *gorm.DB
	Attempts  store.DeliveryStore
	Publisher billing.DeliveryPublisher
	Logger    *zap.Logger
}

// NewDeliveriesHandler creates a deliveries audit handler with dependencies.
func NewDeliveriesHandler(db *gorm.DB, attempts store.DeliveryStore, publisher billing.DeliveryPublisher, logger *zap.Logger) *DeliveriesHandler {
	return &DeliveriesHandler{
		DB:        db,
		Attempts:  attempts,
		Publisher: publisher,
		Logger:    logger,
	}
}

// AttemptDTO is one recorded outbound attempt.
type AttemptDTO struct {
	DeliveryID          string `json:"delivery_id"`
	SubscriptionID      string `json:"subscription_id"`
	EventID             string `json:"event_id"`
	EventType           string `json:"event_type"`
	AttemptNumber       int    `json:"attempt_number"`
	ResponseStatus      int    `json:"response_status"`
	ResponseBodyExcerpt string `json:"response_body_excerpt"`
	DurationMs          int    `json:"duration_ms"`
	Success             bool   `json:"success"`
	Timestamp           string `json:"timestamp"`
}

// GetAttempts handles GET /api/v1/deliveries.
// Query parameters:
//   - event_id (optional): the forwarded event
//   - subscription_id (optional): the target subscription
//
// At least one filter is required; the attempt history of one logical
// delivery is the result of filtering on both.
func (h *DeliveriesHandler) GetAttempts(c *fiber.Ctx) error {
	eventID := c.Query("event_id")
	subscriptionID := uuid.Nil
	if subIDStr := c.Query("subscription_id"); subIDStr != "" {
		parsed, err := uuid.Parse(subIDStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "subscription_id must be a UUID",
			})
		}
		subscriptionID = parsed
	}

	if eventID == "" && subscriptionID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "event_id or subscription_id is required",
		})
	}

	attempts, err := h.Attempts.ListAttempts(c.Context(), eventID, subscriptionID)
	if err != nil {
		h.Logger.Error("Failed to query delivery attempts",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch delivery attempts",
		})
	}

	dtos := make([]AttemptDTO, 0, len(attempts))
	for _, attempt := range attempts {
		dtos = append(dtos, AttemptDTO{
			DeliveryID:          attempt.DeliveryID.String(),
			SubscriptionID:      attempt.SubscriptionID.String(),
			EventID:             attempt.EventID,
			EventType:           attempt.EventType,
			AttemptNumber:       attempt.AttemptNumber,
			ResponseStatus:      attempt.ResponseStatus,
			ResponseBodyExcerpt: attempt.ResponseBodyExcerpt,
			DurationMs:          attempt.DurationMs,
			Success:             attempt.Success,
			Timestamp:           attempt.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{"attempts": dtos})
}

// ReplayDelivery handles POST /api/v1/deliveries/:id/replay. It re-arms an
// abandoned delivery with a fresh attempt budget; the normal retry
// scheduler takes it from there.
func (h *DeliveriesHandler) ReplayDelivery(c *fiber.Ctx) error {
	deliveryID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "delivery id must be a UUID",
		})
	}

	now := time.Now().UTC()
	res := h.DB.Model(&models.OutboundDelivery{}).
		Where("id = ? AND status = ?", deliveryID, models.DeliveryStatusFailed).
		Updates(map[string]interface{}{
			"status":          models.DeliveryStatusPending,
			"attempt_count":   0,
			"next_attempt_at": now,
			"last_error":      gorm.Expr("NULL"),
			"updated_at":      now,
		})
	if res.Error != nil {
		h.Logger.Error("Failed to re-arm delivery",
			zap.String("delivery_id", deliveryID.String()),
			zap.Error(res.Error),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to replay delivery",
		})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "delivery not found or not in failed state",
		})
	}

	if err := h.Publisher.PublishDelivery(c.Context(), deliveryID.String()); err != nil {
		// The row is already pending; the sweep will pick it up.
		h.Logger.Warn("Failed to publish replayed delivery, leaving for sweep",
			zap.String("delivery_id", deliveryID.String()),
			zap.Error(err),
		)
	}

	return c.JSON(fiber.Map{"replayed": true})
}
