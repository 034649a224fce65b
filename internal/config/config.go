package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string // used when DatabaseURL is empty (local development)
	RedisURL    string

	// Base URL used to build claim links in registration responses.
	PublicBaseURL string

	// Moderator credential, distinct from any agent API key. Empty disables
	// moderator deletes.
	ModeratorAPIKey string

	// Email provider (verification codes). Empty key means claim codes
	// cannot be dispatched and send-code answers 503.
	MailAPIKey string
	MailAPIURL string
	MailFrom   string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present. Missing backends are
// tolerated everywhere: handlers answer 503 instead of the process crashing.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       os.Getenv("SQLITE_PATH"),
		RedisURL:         os.Getenv("REDIS_URL"),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		ModeratorAPIKey:  os.Getenv("MODERATOR_API_KEY"),
		MailAPIKey:       os.Getenv("MAIL_API_KEY"),
		MailAPIURL:       getEnv("MAIL_API_URL", "https://api.useplunk.com/v1/send"),
		MailFrom:         getEnv("MAIL_FROM", "claims@mindlist.dev"),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
