package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bidflow/config"
	"bidflow/engine"
	"bidflow/middleware"
	"bidflow/routes"
	"bidflow/utils"
	"bidflow/worker"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Error reporting
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			log.Warnf("Sentry initialization failed: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS())

	// Channel transports
	mailer := utils.NewMailer(config.AppConfig.SMTP)
	smsClient := utils.NewSMSClient(config.AppConfig.Twilio)
	notifier := utils.NewWebhookNotifier(config.AppConfig.NotifyWebhookURL, log)
	leads := utils.NewLeadDirectory(config.DB)

	// Sequence engine
	dispatcher := engine.NewDispatcher(config.DB, mailer, smsClient, notifier, log)
	evaluator := engine.NewEvaluator(config.DB, leads)
	manager := engine.NewManager(config.DB, log)
	processor := engine.NewProcessor(config.DB, dispatcher, evaluator, log)
	processor.BatchSize = config.AppConfig.ProcessBatchSize
	if config.AppConfig.Redis.Enabled {
		processor.Redis = redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Periodic trigger for the processor
	sequenceWorker := worker.NewSequenceWorker(processor, config.AppConfig.ProcessSchedule, log)
	if err := sequenceWorker.Start(ctx); err != nil {
		log.Fatalf("Failed to start sequence worker: %v", err)
	}

	// Inbound reply detection feeding skip_if_replied conditions
	replyWorker := worker.NewReplyWorker(config.DB, config.AppConfig.IMAP, log)
	go replyWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, manager, processor, log)

	// Start server
	log.Infof("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
