package outbound

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relaygrid/billing-events/internal/models"
	"github.com/relaygrid/billing-events/internal/rabbitmq"
)

// QueuePublisher publishes delivery ids to the outbound delivery queue.
// It implements billing.DeliveryPublisher.
type QueuePublisher struct {
	conn       *rabbitmq.Connection
	exchange   string
	routingKey string
}

// NewQueuePublisher creates a publisher for the delivery queue.
func NewQueuePublisher(conn *rabbitmq.Connection, exchange, routingKey string) *QueuePublisher {
	return &QueuePublisher{
		conn:       conn,
		exchange:   exchange,
		routingKey: routingKey,
	}
}

func (p *QueuePublisher) PublishDelivery(_ context.Context, deliveryID string) error {
	body, err := json.Marshal(models.DeliveryMessage{DeliveryID: deliveryID})
	if err != nil {
		return fmt.Errorf("failed to marshal delivery message: %w", err)
	}
	return p.conn.PublishMessage(p.exchange, p.routingKey, body)
}
