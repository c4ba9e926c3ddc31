package config

import (
	"log/slog"
	"strings"

	"github.com/medecole/examsession/internal/events"
)

// EventConfig holds configuration for event publishing
type EventConfig struct {
	Enabled      bool   `env:"EVENTS_ENABLED" envDefault:"true"`
	Publisher    string `env:"EVENTS_PUBLISHER" envDefault:"kafka"` // kafka, channel or mock
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	SessionTopic string `env:"SESSION_EVENTS_TOPIC" envDefault:"exam-session-events"`
}

// GetKafkaBrokers returns Kafka brokers as a slice
func (c *EventConfig) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokers, ",")
}

// CreateEventPublisher creates an event publisher based on configuration
func (c *EventConfig) CreateEventPublisher(logger *slog.Logger) (events.EventPublisher, error) {
	if !c.Enabled {
		logger.Info("Event publishing disabled, using mock publisher")
		return events.NewMockEventPublisher(logger), nil
	}

	switch c.Publisher {
	case "kafka":
		logger.Info("Creating Kafka event publisher",
			"brokers", c.KafkaBrokers,
			"topic", c.SessionTopic)

		return events.NewKafkaEventPublisher(events.PublisherConfig{
			KafkaBrokers: c.GetKafkaBrokers(),
			TopicName:    c.SessionTopic,
			Logger:       logger,
		})
	case "channel":
		logger.Info("Creating in-process event publisher", "topic", c.SessionTopic)
		return events.NewChannelEventPublisher(c.SessionTopic, logger), nil
	case "mock":
		logger.Info("Using mock event publisher")
		return events.NewMockEventPublisher(logger), nil
	default:
		logger.Warn("Unknown event publisher type, falling back to mock", "publisher", c.Publisher)
		return events.NewMockEventPublisher(logger), nil
	}
}
