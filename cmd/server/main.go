package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/relaygrid/billing-events/internal/billing"
	"github.com/relaygrid/billing-events/internal/config"
	"github.com/relaygrid/billing-events/internal/database"
	"github.com/relaygrid/billing-events/internal/dispatch"
	"github.com/relaygrid/billing-events/internal/handlers"
	"github.com/relaygrid/billing-events/internal/logger"
	"github.com/relaygrid/billing-events/internal/outbound"
	"github.com/relaygrid/billing-events/internal/rabbitmq"
	"github.com/relaygrid/billing-events/internal/routes"
	"github.com/relaygrid/billing-events/internal/store"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	if cfg.Provider.WebhookSigningSecret == "" {
		log.Warn("PROVIDER_WEBHOOK_SECRET is not set; inbound webhooks will be rejected with 503")
	}

	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, log); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := database.RunMigrations(&cfg.Database, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	rmq := rabbitmq.NewConnection(&cfg.RabbitMQ, log)
	if err := rmq.Connect(); err != nil {
		log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rmq.Close()

	// Stores.
	claims := store.NewClaimStore(db)
	states := store.NewBillingStateStore(db)
	subscriptions := store.NewSubscriptionStore(db)
	deliveries := store.NewDeliveryStore(db)

	// Outbound side: publisher, worker, sweep.
	publisher := outbound.NewQueuePublisher(rmq, cfg.Outbound.DeliveryExchange, cfg.Outbound.DeliveryRoutingKey)

	worker := outbound.NewWorker(&cfg.Outbound, rmq, db, subscriptions, deliveries, log)
	if err := worker.Start(); err != nil {
		log.Fatal("Failed to start delivery worker", zap.Error(err))
	}

	sweeper := outbound.NewSweeper(&cfg.Outbound, db, publisher, log)
	sweeper.Start()

	// Inbound side: notifier -> engine -> dispatcher.
	notifier := billing.NewWebhookNotifier(subscriptions, deliveries, publisher, cfg.Outbound.MaxAttempts, log)
	engine := billing.NewEngine(states, notifier, log)
	dispatcher := dispatch.NewDispatcher(engine, claims, log)

	webhookHandler := handlers.NewWebhookHandler(
		cfg.Provider.WebhookSigningSecret,
		cfg.Provider.ReplayWindow,
		claims,
		dispatcher,
		log,
	)
	eventsHandler := handlers.NewEventsHandler(db, log)
	deliveriesHandler := handlers.NewDeliveriesHandler(db, deliveries, publisher, log)
	healthHandler := handlers.NewHealthHandler(db, rmq)

	app := fiber.New(fiber.Config{
		AppName:      "Billing Events Service",
		ServerHeader: "Fiber",
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	routes.SetupRoutes(app, webhookHandler, eventsHandler, deliveriesHandler, healthHandler)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		log.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}

	sweeper.Stop()
	if err := worker.Stop(); err != nil {
		log.Error("Error stopping delivery worker", zap.Error(err))
	}

	log.Info("Server stopped")
}
