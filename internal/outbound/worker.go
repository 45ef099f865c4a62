package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/relaygrid/billing-events/internal/config"
	"github.com/relaygrid/billing-events/internal/consumer"
	"github.com/relaygrid/billing-events/internal/models"
	"github.com/relaygrid/billing-events/internal/rabbitmq"
	"github.com/relaygrid/billing-events/internal/store"
)

// Worker consumes the delivery queue and performs outbound webhook
// attempts. Multiple instances can run concurrently; the delivery row lock
// keeps attempts single-winner.
type Worker struct {
	cfg           *config.OutboundConfig
	conn          *rabbitmq.Connection
	db            *gorm.DB
	subscriptions store.SubscriptionStore
	deliveries    store.DeliveryStore
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	consumerTag   string
}

// NewWorker creates a delivery worker with dependencies.
func NewWorker(
	cfg *config.OutboundConfig,
	conn *rabbitmq.Connection,
	db *gorm.DB,
	subscriptions store.SubscriptionStore,
	deliveries store.DeliveryStore,
	logger *zap.Logger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:           cfg,
		conn:          conn,
		db:            db,
		subscriptions: subscriptions,
		deliveries:    deliveries,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		consumerTag:   fmt.Sprintf("delivery-worker-%d", time.Now().Unix()),
	}
}

// Start declares the delivery queue and begins consuming.
func (w *Worker) Start() error {
	if w.cfg.DeliveryQueue == "" {
		return fmt.Errorf("delivery queue is required")
	}

	if err := w.conn.DeclareQueue(w.cfg.DeliveryQueue); err != nil {
		return err
	}

	if err := w.startConsuming(); err != nil {
		return err
	}

	w.logger.Info("Delivery worker started",
		zap.String("delivery_queue", w.cfg.DeliveryQueue),
		zap.String("consumer_tag", w.consumerTag),
		zap.Int("prefetch_count", w.cfg.PrefetchCount),
	)
	return nil
}

func (w *Worker) startConsuming() error {
	if err := w.conn.SetQoS(w.cfg.PrefetchCount); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := w.conn.ConsumeMessages(w.cfg.DeliveryQueue, w.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", w.cfg.DeliveryQueue, err)
	}

	go w.processMessages(messages)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.logger.Info("Stopping delivery worker",
		zap.String("consumer_tag", w.consumerTag),
	)
	w.cancel()

	if err := w.conn.CancelConsumer(w.consumerTag); err != nil {
		w.logger.Error("Failed to cancel consumer",
			zap.String("consumer_tag", w.consumerTag),
			zap.Error(err),
		)
	}
	return nil
}

func (w *Worker) processMessages(messages <-chan amqp.Delivery) {
	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("Worker context cancelled, stopping message processing")
			return
		case msg, ok := <-messages:
			if !ok {
				w.logger.Warn("Message channel closed, attempting to restart consumer...",
					zap.String("delivery_queue", w.cfg.DeliveryQueue),
				)
				w.restartConsuming()
				return
			}
			consumer.ProcessMessage(w.logger, w.cfg.DeliveryQueue, msg, w)
		}
	}
}

// restartConsuming retries until the connection recovers or the worker is
// stopped. A fresh processMessages goroutine takes over on success. The
// worker context is the only stop signal, so Stop needs no shared flag.
func (w *Worker) restartConsuming() {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		time.Sleep(2 * time.Second)

		if !w.conn.IsHealthy() {
			continue
		}

		if err := w.startConsuming(); err != nil {
			w.logger.Error("Failed to restart consuming after channel close, will retry",
				zap.String("delivery_queue", w.cfg.DeliveryQueue),
				zap.Error(err),
			)
			time.Sleep(5 * time.Second)
			continue
		}

		w.logger.Info("Restarted consumer after channel close",
			zap.String("delivery_queue", w.cfg.DeliveryQueue),
		)
		return
	}
}

// HandleMessage implements consumer.MessageHandler.
func (w *Worker) HandleMessage(body []byte) error {
	var deliveryMsg models.DeliveryMessage
	if err := json.Unmarshal(body, &deliveryMsg); err != nil {
		w.logger.Error("Failed to unmarshal delivery message",
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal delivery message: %w", err)
	}

	return HandleDeliveryMessage(w.db, w.subscriptions, w.deliveries, w.cfg, w.logger, deliveryMsg.DeliveryID)
}
