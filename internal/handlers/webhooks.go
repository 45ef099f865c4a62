package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/relaygrid/billing-events/internal/dispatch"
	"github.com/relaygrid/billing-events/internal/models"
	"github.com/relaygrid/billing-events/internal/signature"
	"github.com/relaygrid/billing-events/internal/store"
)

// WebhookHandler is the inbound endpoint for payment-provider event
// notifications. Order matters and is load-bearing: guard first (pure, no
// side effects), then claim (the only serialization point), then dispatch.
type WebhookHandler struct {
	signingSecret string
	replayWindow  time.Duration
	claims        store.ClaimStore
	dispatcher    *dispatch.Dispatcher
	logger        *zap.Logger
	now           func() time.Time
}

// NewWebhookHandler creates the inbound webhook handler.
func NewWebhookHandler(
	signingSecret string,
	replayWindow time.Duration,
	claims store.ClaimStore,
	dispatcher *dispatch.Dispatcher,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		signingSecret: signingSecret,
		replayWindow:  replayWindow,
		claims:        claims,
		dispatcher:    dispatcher,
		logger:        logger,
		now:           time.Now,
	}
}

// HandleProviderEvent handles POST /webhooks/provider.
//
// Responses: 200 {"received": true} on success and on detected duplicates,
// 400 on signature/timestamp/envelope failure, 503 when the provider
// credentials are not configured, 500 on internal processing failure (the
// provider's retry policy redelivers).
func (h *WebhookHandler) HandleProviderEvent(c *fiber.Ctx) error {
	if h.signingSecret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "provider webhook secret is not configured",
		})
	}

	// The signature is computed over the exact raw bytes; verify before
	// any parsing or store write.
	rawBody := c.Body()
	header := c.Get(signature.InboundSignatureHeader)

	if err := signature.VerifyInbound(rawBody, header, h.signingSecret, h.replayWindow, h.now()); err != nil {
		h.logger.Warn("Rejected inbound webhook",
			zap.Error(err),
			zap.String("remote_ip", c.IP()),
		)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": rejectionReason(err),
		})
	}

	var event models.ProviderEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed event payload",
		})
	}
	if event.ID == "" || event.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "event id and type are required",
		})
	}

	result, err := h.claims.Claim(c.Context(), event.ID, event.Type, rawBody)
	if err != nil {
		h.logger.Error("Failed to claim inbound event",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to record event",
		})
	}

	// Duplicate delivery is expected steady-state behavior under
	// at-least-once: ack so the provider stops retrying.
	if result == store.AlreadyClaimed {
		h.logger.Info("Duplicate event delivery acknowledged",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		return c.JSON(fiber.Map{"received": true})
	}

	outcome := h.dispatcher.Dispatch(c.Context(), &event)
	if outcome == dispatch.OutcomeFailed {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "event processing failed",
		})
	}

	return c.JSON(fiber.Map{"received": true})
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, signature.ErrMissingSignature):
		return "missing signature header"
	case errors.Is(err, signature.ErrStaleTimestamp):
		return "signature timestamp outside replay window"
	default:
		return "invalid signature"
	}
}
