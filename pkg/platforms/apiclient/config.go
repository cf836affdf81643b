package apiclient

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// API endpoints
	BaseURL  string
	TokenURL string

	// OAuth application credentials
	ClientID     string
	ClientSecret string

	// Rate limiting
	RequestsPerSecond float64
	Burst             int

	Timeout time.Duration
	Logger  *logrus.Logger
}

// NewConfig builds a platform API client config from environment variables.
// Platform-specific values are read with the given env prefix, e.g.
// META_API_BASE_URL, META_OAUTH_TOKEN_URL, META_CLIENT_ID.
func NewConfig(envPrefix string, logger *logrus.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	rps, _ := strconv.ParseFloat(getEnvOrDefault(envPrefix+"_RATE_LIMIT_RPS", "5"), 64)
	burst, _ := strconv.Atoi(getEnvOrDefault(envPrefix+"_RATE_LIMIT_BURST", "10"))
	timeoutSec, _ := strconv.Atoi(getEnvOrDefault(envPrefix+"_TIMEOUT_SECONDS", "30"))

	config := &Config{
		BaseURL:           os.Getenv(envPrefix + "_API_BASE_URL"),
		TokenURL:          os.Getenv(envPrefix + "_OAUTH_TOKEN_URL"),
		ClientID:          os.Getenv(envPrefix + "_CLIENT_ID"),
		ClientSecret:      os.Getenv(envPrefix + "_CLIENT_SECRET"),
		RequestsPerSecond: rps,
		Burst:             burst,
		Timeout:           time.Duration(timeoutSec) * time.Second,
		Logger:            logger,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.TokenURL == "" {
		return fmt.Errorf("token URL is required")
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
