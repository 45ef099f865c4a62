package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaygrid/billing-events/internal/models"
)

type memAttemptStore struct {
	attempts        []models.OutboundDeliveryAttempt
	gotEventID      string
	gotSubscription uuid.UUID
}

func (s *memAttemptStore) CreateDelivery(_ context.Context, _ *models.OutboundDelivery) error {
	return nil
}

func (s *memAttemptStore) RecordAttempt(_ context.Context, _ *models.OutboundDeliveryAttempt) error {
	return nil
}

func (s *memAttemptStore) ListAttempts(_ context.Context, eventID string, subscriptionID uuid.UUID) ([]models.OutboundDeliveryAttempt, error) {
	s.gotEventID = eventID
	s.gotSubscription = subscriptionID
	return s.attempts, nil
}

func newAttemptsApp(attempts *memAttemptStore) *fiber.App {
	handler := NewDeliveriesHandler(nil, attempts, nil, zap.NewNop())
	app := fiber.New()
	app.Get("/api/v1/deliveries", handler.GetAttempts)
	app.Post("/api/v1/deliveries/:id/replay", handler.ReplayDelivery)
	return app
}

func TestGetAttempts_RequiresFilter(t *testing.T) {
	app := newAttemptsApp(&memAttemptStore{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/deliveries", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetAttempts_RejectsMalformedSubscriptionID(t *testing.T) {
	app := newAttemptsApp(&memAttemptStore{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/deliveries?subscription_id=notauuid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetAttempts_PassesFiltersThrough(t *testing.T) {
	attempts := &memAttemptStore{}
	app := newAttemptsApp(attempts)
	subID := uuid.New()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet,
		"/api/v1/deliveries?event_id=evt_1&subscription_id="+subID.String(), nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "evt_1", attempts.gotEventID)
	assert.Equal(t, subID, attempts.gotSubscription)
}

func TestReplayDelivery_RejectsMalformedID(t *testing.T) {
	app := newAttemptsApp(&memAttemptStore{})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/deliveries/notauuid/replay", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetEvents_PageSizeClamped(t *testing.T) {
	assert.Equal(t, 25, clampEventsPageSize(25))
	assert.Equal(t, maxEventsPageSize, clampEventsPageSize(maxEventsPageSize))
	assert.Equal(t, maxEventsPageSize, clampEventsPageSize(maxEventsPageSize+1))
	assert.Equal(t, maxEventsPageSize, clampEventsPageSize(1000000))
}

func TestGetEvents_RejectsBadPagination(t *testing.T) {
	handler := NewEventsHandler(nil, zap.NewNop())
	app := fiber.New()
	app.Get("/api/v1/events", handler.GetEvents)

	for _, path := range []string{
		"/api/v1/events?limit=0",
		"/api/v1/events?limit=-1",
		"/api/v1/events?limit=abc",
		"/api/v1/events?offset=-1",
		"/api/v1/events?offset=abc",
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, path)
	}
}
