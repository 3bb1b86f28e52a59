package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
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
	"github.com/eventlane/ticketing/pkg/middleware"
	pkgredis "github.com/eventlane/ticketing/pkg/redis"
	"github.com/eventlane/ticketing/pkg/telemetry"
	"github.com/gin-gonic/gin"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "ticketing-api",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Ticketing Service...")

	ctx := context.Background()

	// Initialize telemetry
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
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

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   1 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
		ServiceName:     cfg.OTel.ServiceName,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

	// Initialize Redis connection (idempotency records)
	redisCfg := &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
	}
	redisClient, err := pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	// Initialize Kafka event publisher
	var eventPublisher service.EventPublisher
	eventPubCfg := &service.EventPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		ServiceName: "ticketing-api",
		ClientID:    cfg.Kafka.ClientID,
	}
	eventPublisher, err = service.NewKafkaEventPublisher(ctx, eventPubCfg)
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		eventPublisher = service.NewNoOpEventPublisher()
	} else {
		appLog.Info("Kafka event publisher connected")
		defer eventPublisher.Close()
	}

	// Select payment gateway
	paymentGateway, err := buildGateway(cfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Payment gateway init failed: %v", err))
	}
	appLog.Info(fmt.Sprintf("Payment gateway: %s", paymentGateway.Name()))

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:             db,
		Redis:          redisClient,
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

	// Setup Gin
	gin.SetMode(gin.ReleaseMode)
	gin.DisableConsoleColor()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Pool stats for monitoring
	router.GET("/metrics/pool", func(c *gin.Context) {
		stats := db.Stats()
		c.JSON(http.StatusOK, gin.H{
			"db_pool": gin.H{
				"total_conns":    stats.TotalConns(),
				"acquired_conns": stats.AcquiredConns(),
				"idle_conns":     stats.IdleConns(),
				"max_conns":      stats.MaxConns(),
			},
		})
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": "ticketing-api",
			})
		})

		// Gateway webhooks are authenticated by signature, not by user
		v1.POST("/payments/:gateway/webhook", container.WebhookHandler.HandleWebhook)

		// Booking routes
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.UserExtraction(true))

		idempotencyConfig := middleware.DefaultIdempotencyConfig(redisClient.Client())
		idempotencyConfig.SkipPaths = []string{"/health", "/ready"}

		{
			// Write operations with idempotency
			bookings.POST("", middleware.IdempotencyMiddleware(idempotencyConfig), container.BookingHandler.CreateBooking)
			bookings.PUT("/:id/cancel", middleware.IdempotencyMiddleware(idempotencyConfig), container.BookingHandler.CancelBooking)
			bookings.POST("/:id/payments", middleware.IdempotencyMiddleware(idempotencyConfig), container.BookingHandler.InitiatePayment)

			// Read operations without idempotency
			bookings.GET("", container.BookingHandler.GetUserBookings)
			bookings.GET("/reference/:reference", container.BookingHandler.GetBookingByReference)
			bookings.GET("/:id", container.BookingHandler.GetBooking)
			bookings.GET("/:id/payments", container.BookingHandler.GetBookingPayments)
		}

		// Public catalogue routes
		v1.GET("/events/:event_id/ticket-types", container.TicketTypeHandler.ListEventTicketTypes)
		v1.GET("/ticket-types/:id", container.TicketTypeHandler.GetTicketType)

		// Organizer routes
		organizer := v1.Group("/organizer")
		{
			organizer.PUT("/bookings/:id/check-in", container.BookingHandler.CheckIn)
			organizer.POST("/ticket-types", container.TicketTypeHandler.CreateTicketType)
			organizer.PUT("/ticket-types/:id", container.TicketTypeHandler.UpdateTicketType)
			organizer.PUT("/ticket-types/:id/active", container.TicketTypeHandler.SetTicketTypeActive)
		}
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start pprof server on separate port for profiling
	go func() {
		pprofAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1000)
		appLog.Info(fmt.Sprintf("pprof server listening on %s", pprofAddr))
		if err := http.ListenAndServe(pprofAddr, nil); err != nil {
			appLog.Error(fmt.Sprintf("pprof server error: %v", err))
		}
	}()

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Ticketing Service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
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
