package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventlane/ticketing/internal/di"
	"github.com/eventlane/ticketing/internal/gateway"
	"github.com/eventlane/ticketing/internal/metrics"
	"github.com/eventlane/ticketing/internal/service"
	"github.com/eventlane/ticketing/internal/worker"
	"github.com/eventlane/ticketing/pkg/config"
	"github.com/eventlane/ticketing/pkg/database"
	"github.com/eventlane/ticketing/pkg/logger"
	"github.com/eventlane/ticketing/pkg/telemetry"
)

// The sweeper runs the background maintenance loops separately from the
// API: expiring stale reservations and reconciling payments whose
// webhook never arrived. Both loops use conditional updates to claim
// work, so the sweeper can run alongside any number of API instances.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "ticketing-sweeper",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Ticketing Sweeper...")

	ctx := context.Background()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "ticketing-sweeper",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry init failed, continuing without tracing: %v", err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = telemetry.Shutdown(shutdownCtx)
		}()
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics init failed: %v", err))
	}

	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   1 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
		ServiceName:     "ticketing-sweeper",
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	var eventPublisher service.EventPublisher
	eventPublisher, err = service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		ServiceName: "ticketing-sweeper",
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		eventPublisher = service.NewNoOpEventPublisher()
	} else {
		appLog.Info("Kafka event publisher connected")
		defer eventPublisher.Close()
	}

	paymentGateway, err := buildGateway(cfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Payment gateway init failed: %v", err))
	}
	appLog.Info(fmt.Sprintf("Payment gateway: %s", paymentGateway.Name()))

	container := di.NewContainer(&di.ContainerConfig{
		DB:             db,
		Gateway:        paymentGateway,
		EventPublisher: eventPublisher,
		ServiceConfig: &service.BookingServiceConfig{
			ReservationTimeout: cfg.Booking.ReservationTimeout,
			ReferenceLength:    cfg.Booking.ReferenceLength,
		},
		ExpiryConfig: &worker.ExpiryWorkerConfig{
			ScanInterval: cfg.Booking.SweepInterval,
			BatchSize:    cfg.Booking.SweepBatchSize,
		},
		ReconcileConfig: &worker.ReconcileWorkerConfig{
			ScanInterval: cfg.Payment.ReconcileInterval,
			StaleAfter:   cfg.Payment.ReconcileAfter,
			BatchSize:    cfg.Payment.ReconcileBatchSize,
		},
	})

	if err := container.ExpiryWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start expiry worker: %v", err))
	}
	if err := container.ReconcileWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start reconcile worker: %v", err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down sweeper...")

	container.ReconcileWorker.Stop()
	container.ExpiryWorker.Stop()

	appLog.Info("Sweeper exited gracefully")
}

// buildGateway selects the payment gateway adapter from configuration
func buildGateway(cfg *config.Config) (gateway.PaymentGateway, error) {
	switch cfg.Payment.Gateway {
	case "stripe":
		return gateway.NewStripeGateway(&gateway.StripeGatewayConfig{
			SecretKey:     cfg.Payment.StripeSecretKey,
			WebhookSecret: cfg.Payment.StripeWebhookKey,
		})
	default:
		return gateway.NewMockGateway(), nil
	}
}
