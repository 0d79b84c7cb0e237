// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Wallet settings
	DincoinDircoinRate int64  // dircoin credited per dincoin on an approved dincoin top-up
	PlatformFeeBps     int64  // platform fee in basis points taken from each purchase
	PlatformAccountID  string // wallet that accumulates platform fees
	MaxTopupAmount     int64  // upper bound on a single top-up request
	MaxPurchaseAmount  int64  // upper bound on a single purchase

	// Admins allowed to approve or reject top-up requests
	AdminUserIDs []string

	// Rate limiting
	RateLimitRPM         int           // global per-IP requests per minute
	TopupLimitPerUser    int           // top-up submissions per user per window
	TopupLimitWindow     time.Duration // fixed window for the per-user top-up limit
	PurchaseLimitPerUser int           // purchases per buyer per window
	PurchaseLimitWindow  time.Duration

	// Reconciliation
	ReconcileInterval time.Duration // 0 disables the periodic sweep

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)
}

const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultDincoinDircoinRate = 100
	DefaultPlatformFeeBps     = 250 // 2.5%
	DefaultPlatformAccountID  = "platform"
	DefaultMaxTopupAmount     = 1_000_000
	DefaultMaxPurchaseAmount  = 1_000_000
	DefaultRateLimit          = 300
	DefaultTopupLimit         = 10
	DefaultPurchaseLimit      = 30
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		DincoinDircoinRate:   getEnvInt64("DINCOIN_DIRCOIN_RATE", DefaultDincoinDircoinRate),
		PlatformFeeBps:       getEnvInt64("PLATFORM_FEE_BPS", DefaultPlatformFeeBps),
		PlatformAccountID:    getEnv("PLATFORM_ACCOUNT_ID", DefaultPlatformAccountID),
		MaxTopupAmount:       getEnvInt64("MAX_TOPUP_AMOUNT", DefaultMaxTopupAmount),
		MaxPurchaseAmount:    getEnvInt64("MAX_PURCHASE_AMOUNT", DefaultMaxPurchaseAmount),
		AdminUserIDs:         splitList(os.Getenv("ADMIN_USER_IDS")),
		RateLimitRPM:         int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		TopupLimitPerUser:    int(getEnvInt64("TOPUP_LIMIT_PER_USER", DefaultTopupLimit)),
		TopupLimitWindow:     getEnvDuration("TOPUP_LIMIT_WINDOW", time.Hour),
		PurchaseLimitPerUser: int(getEnvInt64("PURCHASE_LIMIT_PER_USER", DefaultPurchaseLimit)),
		PurchaseLimitWindow:  getEnvDuration("PURCHASE_LIMIT_WINDOW", time.Minute),
		ReconcileInterval:    getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		OTLPEndpoint:         os.Getenv("OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.DincoinDircoinRate <= 0 {
		return fmt.Errorf("DINCOIN_DIRCOIN_RATE must be positive")
	}
	if c.PlatformFeeBps < 0 || c.PlatformFeeBps > 10000 {
		return fmt.Errorf("PLATFORM_FEE_BPS must be between 0 and 10000")
	}
	if c.PlatformAccountID == "" {
		return fmt.Errorf("PLATFORM_ACCOUNT_ID must not be empty")
	}
	if c.MaxTopupAmount <= 0 {
		return fmt.Errorf("MAX_TOPUP_AMOUNT must be positive")
	}
	if c.MaxPurchaseAmount <= 0 {
		return fmt.Errorf("MAX_PURCHASE_AMOUNT must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
