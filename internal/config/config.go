// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/utils"
)

// DefaultIndices are the market indices watched for the index crash rule
var DefaultIndices = []string{"^N225", "^GSPC"}

// Config holds application configuration
type Config struct {
	Policy           *Policy
	DataDir          string // Base directory for all databases (always absolute)
	LogLevel         string
	PolicyFile       string
	DailySchedule    string // cron spec of the daily pass
	WeeklySchedule   string // cron spec of the signal expiry sweep
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
	MarketIndices    []string
	Port             int
	DevMode          bool
}

// Load reads configuration from environment variables and the policy file
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("WATCHTOWER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		Port:             getEnvAsInt("HTTP_PORT", 8080),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		PolicyFile:       getEnv("POLICY_FILE", ""),
		DailySchedule:    getEnv("DAILY_SCHEDULE", "0 30 18 * * 1-5"),
		WeeklySchedule:   getEnv("WEEKLY_SCHEDULE", "0 0 9 * * 0"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		MarketIndices:    getEnvAsList("MARKET_INDICES", DefaultIndices),
	}

	policy, err := LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that cannot be defaulted
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return &domain.ConfigurationError{Field: "HTTP_PORT", Reason: fmt.Sprintf("invalid port %d", c.Port)}
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return &domain.ConfigurationError{Field: "TELEGRAM_CHAT_ID", Reason: "bot token and chat id must be set together"}
	}
	if c.Policy == nil {
		return &domain.ConfigurationError{Field: "policy", Reason: "not loaded"}
	}
	return c.Policy.Validate()
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return utils.ParseCSV(value)
}
