package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DLQMessage is the envelope written to a dead letter topic. It carries
// everything needed to replay the original event once the cause of the
// failure is fixed.
type DLQMessage struct {
	ID            string            `json:"id"`
	OriginalTopic string            `json:"original_topic"`
	OriginalKey   string            `json:"original_key"`
	Payload       json.RawMessage   `json:"payload"`
	Headers       map[string]string `json:"headers,omitempty"`
	// Error is the message of the failure that parked this event
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
	// Attempts counts delivery attempts before giving up
	Attempts       int       `json:"attempts"`
	FirstAttemptAt time.Time `json:"first_attempt_at"`
	LastAttemptAt  time.Time `json:"last_attempt_at"`
	// MovedToDLQAt and Source are stamped by the publisher
	MovedToDLQAt time.Time              `json:"moved_to_dlq_at"`
	Source       string                 `json:"source"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// DLQPublisher parks undeliverable messages on a dead letter topic
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg *DLQMessage) error
	// GetDLQTopic maps an original topic to its dead letter topic
	GetDLQTopic(originalTopic string) string
}

// DLQConfig controls dead letter topic naming
type DLQConfig struct {
	// TopicPrefix is used when UsePrefix is true (default: "dlq.")
	TopicPrefix string
	// TopicSuffix is used otherwise (default: ".dlq")
	TopicSuffix string
	UsePrefix   bool
	// Source identifies the service that parked the message
	Source string
}

// DefaultDLQConfig returns suffix-style naming: <topic>.dlq
func DefaultDLQConfig() *DLQConfig {
	return &DLQConfig{
		TopicPrefix: "dlq.",
		TopicSuffix: ".dlq",
		UsePrefix:   false,
		Source:      "unknown",
	}
}

// KafkaPublisher is the producer surface the DLQ publisher needs
type KafkaPublisher interface {
	PublishJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error
}

// JSONProducer matches the kafka package's producer method set
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error
}

// KafkaProducerAdapter adapts a JSONProducer to KafkaPublisher
type KafkaProducerAdapter struct {
	Producer JSONProducer
}

func (a *KafkaProducerAdapter) PublishJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error {
	return a.Producer.ProduceJSON(ctx, topic, key, data, headers)
}

// KafkaDLQPublisher writes DLQMessages to Kafka dead letter topics
type KafkaDLQPublisher struct {
	producer KafkaPublisher
	config   *DLQConfig
}

// NewKafkaDLQPublisher creates a publisher, nil config uses defaults
func NewKafkaDLQPublisher(producer KafkaPublisher, config *DLQConfig) *KafkaDLQPublisher {
	if config == nil {
		config = DefaultDLQConfig()
	}
	return &KafkaDLQPublisher{
		producer: producer,
		config:   config,
	}
}

// PublishToDLQ stamps the message and produces it to the dead letter
// topic derived from its original topic. The original headers are kept
// under an "original_" prefix so they never collide with the DLQ's own.
func (p *KafkaDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	if msg == nil {
		return fmt.Errorf("DLQ message cannot be nil")
	}

	dlqTopic := p.GetDLQTopic(msg.OriginalTopic)
	msg.MovedToDLQAt = time.Now()
	msg.Source = p.config.Source

	headers := map[string]string{
		"content_type":    "application/json",
		"original_topic":  msg.OriginalTopic,
		"error":           msg.Error,
		"attempts":        fmt.Sprintf("%d", msg.Attempts),
		"moved_to_dlq_at": msg.MovedToDLQAt.Format(time.RFC3339),
		"source":          msg.Source,
	}
	if msg.ErrorCode != "" {
		headers["error_code"] = msg.ErrorCode
	}
	for k, v := range msg.Headers {
		if _, exists := headers[k]; !exists {
			headers["original_"+k] = v
		}
	}

	return p.producer.PublishJSON(ctx, dlqTopic, msg.OriginalKey, msg, headers)
}

// GetDLQTopic returns the dead letter topic for an original topic
func (p *KafkaDLQPublisher) GetDLQTopic(originalTopic string) string {
	if p.config.UsePrefix {
		return p.config.TopicPrefix + originalTopic
	}
	return originalTopic + p.config.TopicSuffix
}
