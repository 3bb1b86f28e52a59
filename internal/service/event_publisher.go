package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/eventlane/ticketing/pkg/kafka"
	"github.com/eventlane/ticketing/pkg/retry"
	"github.com/google/uuid"
)

// EventPublisher defines the interface for publishing booking lifecycle events
type EventPublisher interface {
	// PublishBookingCreated publishes a booking created event
	PublishBookingCreated(ctx context.Context, booking *domain.Booking) error

	// PublishBookingConfirmed publishes a booking confirmed event
	PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error

	// PublishBookingCancelled publishes a booking cancelled event
	PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error

	// PublishBookingCheckedIn publishes a booking checked-in event
	PublishBookingCheckedIn(ctx context.Context, booking *domain.Booking) error

	// PublishRefundRequired signals that a cancelled booking holds a
	// successful payment the payment collaborator must refund
	PublishRefundRequired(ctx context.Context, booking *domain.Booking) error

	// Close closes the event publisher
	Close() error
}

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer    *kafka.Producer
	dlq         retry.DLQPublisher
	topic       string
	serviceName string
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(ctx context.Context, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event publisher config is required")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "booking-events"
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ticketing"
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "ticketing-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		BatchSize:     100,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	dlq := retry.NewKafkaDLQPublisher(
		&retry.KafkaProducerAdapter{Producer: producer},
		&retry.DLQConfig{TopicSuffix: ".dlq", Source: serviceName},
	)

	return &KafkaEventPublisher{
		producer:    producer,
		dlq:         dlq,
		topic:       topic,
		serviceName: serviceName,
	}, nil
}

// PublishBookingCreated publishes a booking created event
func (p *KafkaEventPublisher) PublishBookingCreated(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventCreated, booking)
}

// PublishBookingConfirmed publishes a booking confirmed event
func (p *KafkaEventPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventConfirmed, booking)
}

// PublishBookingCancelled publishes a booking cancelled event
func (p *KafkaEventPublisher) PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventCancelled, booking)
}

// PublishBookingCheckedIn publishes a booking checked-in event
func (p *KafkaEventPublisher) PublishBookingCheckedIn(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventCheckedIn, booking)
}

// PublishRefundRequired publishes a refund required event
func (p *KafkaEventPublisher) PublishRefundRequired(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.RefundEventRequired, booking)
}

// Close closes the event publisher
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

// publishEvent publishes a booking event to Kafka
func (p *KafkaEventPublisher) publishEvent(ctx context.Context, eventType domain.BookingEventType, booking *domain.Booking) error {
	eventID := uuid.New().String()
	event := domain.NewBookingEvent(eventType, booking, eventID)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := map[string]string{
		"event_type":   string(eventType),
		"event_id":     eventID,
		"source":       p.serviceName,
		"content_type": "application/json",
	}

	msg := &kafka.Message{
		Topic:     p.topic,
		Key:       []byte(event.Key()),
		Value:     value,
		Headers:   headers,
		Timestamp: time.Now(),
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		p.moveToDLQ(ctx, eventID, event.Key(), value, headers, err)
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	return nil
}

// moveToDLQ parks an undeliverable event on the dead letter topic so it can
// be replayed once the broker recovers. Errors here are swallowed: the
// caller already gets the original produce error.
func (p *KafkaEventPublisher) moveToDLQ(ctx context.Context, eventID, key string, payload []byte, headers map[string]string, cause error) {
	if p.dlq == nil {
		return
	}

	now := time.Now()
	_ = p.dlq.PublishToDLQ(ctx, &retry.DLQMessage{
		ID:             eventID,
		OriginalTopic:  p.topic,
		OriginalKey:    key,
		Payload:        payload,
		Headers:        headers,
		Error:          cause.Error(),
		Attempts:       1,
		FirstAttemptAt: now,
		LastAttemptAt:  now,
	})
}

// NoOpEventPublisher is a no-op implementation of EventPublisher for testing
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

// PublishBookingCreated is a no-op
func (p *NoOpEventPublisher) PublishBookingCreated(ctx context.Context, booking *domain.Booking) error {
	return nil
}

// PublishBookingConfirmed is a no-op
func (p *NoOpEventPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	return nil
}

// PublishBookingCancelled is a no-op
func (p *NoOpEventPublisher) PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error {
	return nil
}

// PublishBookingCheckedIn is a no-op
func (p *NoOpEventPublisher) PublishBookingCheckedIn(ctx context.Context, booking *domain.Booking) error {
	return nil
}

// PublishRefundRequired is a no-op
func (p *NoOpEventPublisher) PublishRefundRequired(ctx context.Context, booking *domain.Booking) error {
	return nil
}

// Close is a no-op
func (p *NoOpEventPublisher) Close() error {
	return nil
}
