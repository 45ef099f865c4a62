package consumer

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageHandler is the interface worker loops implement to handle one
// queue message body.
type MessageHandler interface {
	HandleMessage(body []byte) error
}

// ProcessMessage runs one message through a handler with the standard
// ack/nack discipline: ACK on success, NACK without requeue on failure.
// Redelivery of failed work is driven by the durable rows and the pending
// sweep, not by broker requeues, so a poison message cannot spin.
func ProcessMessage(logger *zap.Logger, queue string, msg amqp.Delivery, handler MessageHandler) {
	if err := handler.HandleMessage(msg.Body); err != nil {
		logger.Error("Failed to process message from queue",
			zap.String("queue", queue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		rejectMessage(logger, msg)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("Failed to ack message from queue",
			zap.String("queue", queue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}

func rejectMessage(logger *zap.Logger, msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		logger.Error("Failed to nack a message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}
