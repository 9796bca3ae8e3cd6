package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay.
type Config struct {
	Port        string
	Env         string
	RedisURL    string
	DatabaseURL string // merchant directory (postgres); optional
	SQLitePath  string // merchant directory (sqlite, development fallback)

	// Auth
	TokenSecret string
	TokenCookie string

	// Broker topic/queue names (configuration, not protocol)
	MerchantNotifyTopic string
	MerchantQueue       string
	ConsumerNotifyTopic string
	ConsumerQueue       string
	OfflinePrefix       string

	// Relay tuning
	SendTimeout  time.Duration // bound on a single socket write
	PollInterval time.Duration // bus listener fallback poll

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "6035"),
		Env:         getEnv("ENV", "development"),
		RedisURL:    os.Getenv("REDIS_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),

		TokenSecret: os.Getenv("TOKEN_SECRET"),
		TokenCookie: getEnv("TOKEN_COOKIE", "x_token"),

		MerchantNotifyTopic: getEnv("MERCHANT_NOTIFY_TOPIC", "chat:notify:merchant"),
		MerchantQueue:       getEnv("MERCHANT_QUEUE", "chat:queue:merchant"),
		ConsumerNotifyTopic: getEnv("CONSUMER_NOTIFY_TOPIC", "chat:notify:consumer"),
		ConsumerQueue:       getEnv("CONSUMER_QUEUE", "chat:queue:consumer"),
		OfflinePrefix:       getEnv("OFFLINE_PREFIX", "offline:"),

		SendTimeout:  getDuration("SEND_TIMEOUT", 10*time.Second),
		PollInterval: getDuration("POLL_INTERVAL", time.Second),
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

	// In production, require redis and the token secret
	if cfg.Env == "production" {
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.TokenSecret == "" {
			panic("TOKEN_SECRET is required in production")
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

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
