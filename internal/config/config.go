package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GatewayBaseURL string
	GatewayTimeout time.Duration
	GatewayToken   string
	RedisURL       string
	Environment    string
	Events         EventConfig
}

func LoadConfig() (*Config, error) {
	// A missing .env file is fine, the process environment still applies.
	_ = godotenv.Load()

	return &Config{
		GatewayBaseURL: getEnv("EXAM_GATEWAY_URL", "http://localhost:8080"),
		GatewayTimeout: getDurationEnv("EXAM_GATEWAY_TIMEOUT", 10*time.Second),
		GatewayToken:   getEnv("EXAM_GATEWAY_TOKEN", ""),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		Events: EventConfig{
			Enabled:      getBoolEnv("EVENTS_ENABLED", true),
			Publisher:    getEnv("EVENTS_PUBLISHER", "kafka"),
			KafkaBrokers: getEnv("KAFKA_BROKERS", "localhost:9092"),
			SessionTopic: getEnv("SESSION_EVENTS_TOPIC", "exam-session-events"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
