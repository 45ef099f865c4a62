package outbound

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/relaygrid/billing-events/internal/billing"
	"github.com/relaygrid/billing-events/internal/config"
)

// Sweeper periodically republishes pending deliveries whose next attempt
// is due. It is what makes the queue at-least-once end to end: deliveries
// survive dropped publishes, broker restarts and crashed workers, because
// the durable row is the source of truth and the queue message is only a
// wake-up.
type Sweeper struct {
	cfg       *config.OutboundConfig
	db        *gorm.DB
	publisher billing.DeliveryPublisher
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewSweeper creates a sweeper with dependencies.
func NewSweeper(cfg *config.OutboundConfig, db *gorm.DB, publisher billing.DeliveryPublisher, logger *zap.Logger) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		cfg:       cfg,
		db:        db,
		publisher: publisher,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the sweep loop in a goroutine.
func (s *Sweeper) Start() {
	go s.run()
	s.logger.Info("Delivery sweeper started",
		zap.Duration("interval", s.cfg.SweepInterval),
	)
}

// Stop stops the sweep loop.
func (s *Sweeper) Stop() {
	s.cancel()
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	now := time.Now().UTC()

	if reset, err := resetStaleProcessing(s.db, now); err != nil {
		s.logger.Error("Failed to reset stale processing deliveries", zap.Error(err))
	} else if reset > 0 {
		s.logger.Warn("Re-armed deliveries stuck in processing",
			zap.Int64("count", reset),
		)
	}

	ids, err := findDueDeliveryIDs(s.db, now, s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.Error("Failed to find due deliveries", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}

	published := 0
	for _, id := range ids {
		if err := s.publisher.PublishDelivery(s.ctx, id.String()); err != nil {
			s.logger.Error("Failed to republish due delivery",
				zap.String("delivery_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		published++
	}

	s.logger.Debug("Swept due deliveries",
		zap.Int("due", len(ids)),
		zap.Int("published", published),
	)
}
