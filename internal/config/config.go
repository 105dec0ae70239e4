// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	LogLevel  string
	LogPretty bool

	// Durable queue
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	QueuePrefix          string
	DequeueTimeout       time.Duration
	RetryDelay           time.Duration
	RetrySweepInterval   time.Duration
	DelayedSweepInterval time.Duration

	// Event processor
	Workers     int
	MaxAttempts int

	// Rebalance engine
	SellConfirmTimeout time.Duration

	// Storage
	DataDir      string // Base directory for local databases (always absolute)
	AllocationDB string // SQLite file holding allocations, replacement sets and account defaults

	// Trading hours
	MarketExchange  string
	MOCWindow       time.Duration
	MarketOpenDelay time.Duration

	// Notifications
	TelegramBotToken string
	TelegramChatID   string

	// Paper broker
	PaperCash   float64
	PaperPrices map[string]float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	prices, err := parsePrices(getEnv("PAPER_PRICES", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid PAPER_PRICES: %w", err)
	}

	cfg := &Config{
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogPretty:            getEnvAsBool("LOG_PRETTY", true),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvAsInt("REDIS_DB", 0),
		QueuePrefix:          getEnv("QUEUE_PREFIX", "rebalancer"),
		DequeueTimeout:       getEnvAsDuration("DEQUEUE_TIMEOUT", 5*time.Second),
		RetryDelay:           getEnvAsDuration("RETRY_DELAY", 60*time.Second),
		RetrySweepInterval:   getEnvAsDuration("RETRY_SWEEP_INTERVAL", 5*time.Second),
		DelayedSweepInterval: getEnvAsDuration("DELAYED_SWEEP_INTERVAL", time.Minute),
		Workers:              getEnvAsInt("WORKERS", 4),
		MaxAttempts:          getEnvAsInt("MAX_ATTEMPTS", 10),
		SellConfirmTimeout:   getEnvAsDuration("SELL_CONFIRM_TIMEOUT", 60*time.Second),
		DataDir:              dataDir,
		AllocationDB:         getEnv("ALLOCATION_DB", filepath.Join(dataDir, "allocations.db")),
		MarketExchange:       getEnv("MARKET_EXCHANGE", "XNYS"),
		MOCWindow:            getEnvAsDuration("MOC_WINDOW", 15*time.Minute),
		MarketOpenDelay:      getEnvAsDuration("MARKET_OPEN_DELAY", 5*time.Minute),
		TelegramBotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:       getEnv("TELEGRAM_CHAT_ID", ""),
		PaperCash:            getEnvAsFloat("PAPER_CASH", 100000),
		PaperPrices:          prices,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.QueuePrefix == "" {
		return fmt.Errorf("QUEUE_PREFIX must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	if c.DequeueTimeout <= 0 {
		return fmt.Errorf("DEQUEUE_TIMEOUT must be positive")
	}
	if c.RetrySweepInterval < time.Second || c.DelayedSweepInterval < time.Second {
		return fmt.Errorf("sweep intervals must be at least one second")
	}
	if c.SellConfirmTimeout <= 0 {
		return fmt.Errorf("SELL_CONFIRM_TIMEOUT must be positive")
	}
	return nil
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parsePrices parses "SPY:400,QQQ:300" into a price map
func parsePrices(raw string) (map[string]float64, error) {
	prices := make(map[string]float64)
	if strings.TrimSpace(raw) == "" {
		return prices, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected SYMBOL:PRICE, got %q", pair)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", parts[0], err)
		}
		prices[strings.ToUpper(strings.TrimSpace(parts[0]))] = price
	}
	return prices, nil
}
