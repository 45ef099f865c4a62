package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/relaygrid/billing-events/internal/models"
)

// EventsHandler serves the inbound side of the delivery audit log: a
// read-only projection over claim records.
type EventsHandler struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewEventsHandler creates an events audit handler with dependencies.
func NewEventsHandler(db *gorm.DB, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		DB:     db,
		Logger: logger,
	}
}

// EventsResponse is the response structure for GET /api/v1/events.
type EventsResponse struct {
	Events  []InboundEventDTO `json:"events"`
	HasMore bool              `json:"has_more"`
}

// InboundEventDTO is a single claim record in the audit listing.
type InboundEventDTO struct {
	EventID         string  `json:"event_id"`
	EventType       string  `json:"event_type"`
	ClaimState      string  `json:"claim_state"`
	HTTPStatus      *int    `json:"http_status"`
	ResponseSummary *string `json:"response_summary"`
	ReceivedAt      string  `json:"received_at"`
}

// Page size bounds for the events listing. The cap keeps one request from
// loading the whole claim table.
const (
	defaultEventsPageSize = 25
	maxEventsPageSize     = 100
)

func clampEventsPageSize(limit int) int {
	if limit > maxEventsPageSize {
		return maxEventsPageSize
	}
	return limit
}

// GetEvents handles GET /api/v1/events.
// Query parameters:
//   - state (optional): filter by claim state (CLAIMED, PROCESSED, FAILED)
//   - limit (optional, default 25, capped at 100), offset (optional, default 0)
func (h *EventsHandler) GetEvents(c *fiber.Ctx) error {
	limit := defaultEventsPageSize
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = clampEventsPageSize(parsed)
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "offset must be a non-negative integer",
			})
		}
		offset = parsed
	}

	query := h.DB.Model(&models.InboundEvent{}).
		Order("received_at DESC").
		Limit(limit + 1). // one extra row to determine has_more
		Offset(offset)

	if state := c.Query("state"); state != "" {
		query = query.Where("claim_state = ?", state)
	}

	var events []models.InboundEvent
	if err := query.Find(&events).Error; err != nil {
		h.Logger.Error("Failed to query inbound events", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch events",
		})
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}

	dtos := make([]InboundEventDTO, 0, len(events))
	for _, event := range events {
		dtos = append(dtos, InboundEventDTO{
			EventID:         event.EventID,
			EventType:       event.EventType,
			ClaimState:      event.ClaimState,
			HTTPStatus:      event.HTTPStatusRecorded,
			ResponseSummary: event.ResponseSummary,
			ReceivedAt:      event.ReceivedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(EventsResponse{
		Events:  dtos,
		HasMore: hasMore,
	})
}
