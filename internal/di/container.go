package di

import (
	"github.com/eventlane/ticketing/internal/gateway"
	"github.com/eventlane/ticketing/internal/handler"
	"github.com/eventlane/ticketing/internal/repository"
	"github.com/eventlane/ticketing/internal/service"
	"github.com/eventlane/ticketing/internal/worker"
	"github.com/eventlane/ticketing/pkg/database"
	"github.com/eventlane/ticketing/pkg/redis"
)

// Container holds all dependencies for the ticketing service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	BookingRepo    repository.BookingRepository
	TicketTypeRepo repository.TicketTypeRepository
	PaymentRepo    repository.PaymentRepository

	// Gateway and publishers
	Gateway        gateway.PaymentGateway
	EventPublisher service.EventPublisher

	// Services
	BookingService    service.BookingService
	PaymentService    service.PaymentService
	TicketTypeService service.TicketTypeService

	// Handlers
	HealthHandler     *handler.HealthHandler
	BookingHandler    *handler.BookingHandler
	TicketTypeHandler *handler.TicketTypeHandler
	WebhookHandler    *handler.WebhookHandler

	// Workers
	ExpiryWorker    *worker.ExpiryWorker
	ReconcileWorker *worker.ReconcileWorker
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB              *database.PostgresDB
	Redis           *redis.Client
	Gateway         gateway.PaymentGateway
	EventPublisher  service.EventPublisher
	ServiceConfig   *service.BookingServiceConfig
	ExpiryConfig    *worker.ExpiryWorkerConfig
	ReconcileConfig *worker.ReconcileWorkerConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		Gateway:        cfg.Gateway,
		EventPublisher: cfg.EventPublisher,
	}

	if c.Gateway == nil {
		c.Gateway = gateway.NewMockGateway()
	}

	// Initialize repositories
	pool := c.DB.Pool()
	c.BookingRepo = repository.NewPostgresBookingRepository(pool)
	c.TicketTypeRepo = repository.NewPostgresTicketTypeRepository(pool)
	c.PaymentRepo = repository.NewPostgresPaymentRepository(pool)

	// Initialize services
	c.BookingService = service.NewBookingService(
		c.BookingRepo,
		c.TicketTypeRepo,
		c.PaymentRepo,
		c.EventPublisher,
		cfg.ServiceConfig,
	)
	c.PaymentService = service.NewPaymentService(
		c.PaymentRepo,
		c.BookingRepo,
		c.Gateway,
		c.EventPublisher,
	)
	c.TicketTypeService = service.NewTicketTypeService(c.TicketTypeRepo)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService, c.PaymentService)
	c.TicketTypeHandler = handler.NewTicketTypeHandler(c.TicketTypeService)
	c.WebhookHandler = handler.NewWebhookHandler(c.PaymentService)

	// Initialize workers
	c.ExpiryWorker = worker.NewExpiryWorker(c.BookingService, cfg.ExpiryConfig)
	c.ReconcileWorker = worker.NewReconcileWorker(c.PaymentRepo, c.PaymentService, cfg.ReconcileConfig)

	return c
}
