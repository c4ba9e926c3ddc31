package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventPublisher defines the interface for publishing session lifecycle events
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event *SessionEvent) error
	Close() error
}

// KafkaEventPublisher implements EventPublisher using Watermill with Kafka
type KafkaEventPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
	topicName string
}

// PublisherConfig holds configuration for the event publisher
type PublisherConfig struct {
	KafkaBrokers []string
	TopicName    string
	Logger       *slog.Logger
}

// NewKafkaEventPublisher creates a new Kafka-based event publisher using Watermill
func NewKafkaEventPublisher(config PublisherConfig) (*KafkaEventPublisher, error) {
	logger := watermill.NewSlogLogger(config.Logger)

	publisherConfig := kafka.PublisherConfig{
		Brokers:   config.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}

	publisher, err := kafka.NewPublisher(publisherConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}

	return &KafkaEventPublisher{
		publisher: publisher,
		logger:    config.Logger,
		topicName: config.TopicName,
	}, nil
}

// PublishSessionEvent publishes a session lifecycle event to Kafka
func (p *KafkaEventPublisher) PublishSessionEvent(ctx context.Context, event *SessionEvent) error {
	return publish(p.publisher, p.topicName, p.logger, event)
}

// Close closes the publisher and releases resources
func (p *KafkaEventPublisher) Close() error {
	return p.publisher.Close()
}

// ChannelEventPublisher implements EventPublisher with Watermill's in-process
// GoChannel pub/sub. Suited to embedding the session engine in an application
// that consumes lifecycle events locally.
type ChannelEventPublisher struct {
	pubSub    *gochannel.GoChannel
	logger    *slog.Logger
	topicName string
}

// NewChannelEventPublisher creates an in-process event publisher.
func NewChannelEventPublisher(topicName string, logger *slog.Logger) *ChannelEventPublisher {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
	return &ChannelEventPublisher{
		pubSub:    pubSub,
		logger:    logger,
		topicName: topicName,
	}
}

// Subscribe returns a channel of raw event messages for the publisher's topic.
func (p *ChannelEventPublisher) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return p.pubSub.Subscribe(ctx, p.topicName)
}

// PublishSessionEvent publishes a session lifecycle event in-process
func (p *ChannelEventPublisher) PublishSessionEvent(ctx context.Context, event *SessionEvent) error {
	return publish(p.pubSub, p.topicName, p.logger, event)
}

// Close closes the underlying pub/sub
func (p *ChannelEventPublisher) Close() error {
	return p.pubSub.Close()
}

func publish(publisher message.Publisher, topic string, logger *slog.Logger, event *SessionEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	msg := message.NewMessage(event.ID, eventBytes)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("version", event.Version)
	msg.Metadata.Set("timestamp", event.Timestamp.Format("2006-01-02T15:04:05Z07:00"))

	if err := publisher.Publish(topic, msg); err != nil {
		logger.Error("Failed to publish session event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
		return fmt.Errorf("failed to publish session event: %w", err)
	}

	logger.Debug("Published session event",
		"event_id", event.ID,
		"event_type", event.Type,
		"topic", topic)

	return nil
}

// MockEventPublisher is a mock implementation for testing. Safe for
// concurrent use because syncs publish from their own goroutines.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []SessionEvent
	Logger *slog.Logger
}

// NewMockEventPublisher creates a new mock event publisher
func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{
		events: make([]SessionEvent, 0),
		Logger: logger,
	}
}

// PublishSessionEvent stores the event in memory (for testing)
func (m *MockEventPublisher) PublishSessionEvent(ctx context.Context, event *SessionEvent) error {
	m.mu.Lock()
	m.events = append(m.events, *event)
	m.mu.Unlock()
	m.Logger.Debug("Mock: published session event",
		"event_id", event.ID,
		"event_type", event.Type)
	return nil
}

// Close is a no-op for the mock publisher
func (m *MockEventPublisher) Close() error {
	return nil
}

// GetPublishedEvents returns all published events (for testing)
func (m *MockEventPublisher) GetPublishedEvents() []SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SessionEvent(nil), m.events...)
}

// ClearEvents clears all published events (for testing)
func (m *MockEventPublisher) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = m.events[:0]
}
