// Package appconfig assembles process-level configuration from the
// environment.
package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string

	// Queue broker
	AMQPURL string

	// Periodic sync scheduling
	SyncInterval time.Duration

	// Enrichment tuning
	MaxKnowledgeEntries int
	DraftTemperature    float64
	DraftMaxTokens      int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	syncMinutes, _ := strconv.Atoi(getEnvOrDefault("SYNC_INTERVAL_MINUTES", "15"))
	maxKB, _ := strconv.Atoi(getEnvOrDefault("ENRICH_MAX_KNOWLEDGE_ENTRIES", "5"))
	draftTemp, _ := strconv.ParseFloat(getEnvOrDefault("ENRICH_DRAFT_TEMPERATURE", "0.7"), 64)
	draftTokens, _ := strconv.Atoi(getEnvOrDefault("ENRICH_DRAFT_MAX_TOKENS", "300"))

	config := &Config{
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		AMQPURL:             os.Getenv("RABBITMQ_URL"),
		SyncInterval:        time.Duration(syncMinutes) * time.Minute,
		MaxKnowledgeEntries: maxKB,
		DraftTemperature:    draftTemp,
		DraftMaxTokens:      draftTokens,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.AMQPURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required")
	}
	if c.SyncInterval < time.Minute {
		return fmt.Errorf("sync interval must be at least one minute")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
