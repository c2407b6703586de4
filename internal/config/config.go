package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL       string
	Port              string
	LogLevel          string
	LogFormat         string
	CarriersFile      string
	FeedWebhookSecret string
	FeedCarrierFamily string

	// Zero values fall back to the db package defaults.
	DBMaxConns         int32
	DBStatementTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is honoured but never overrides variables that are already set.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Port:              getenv("PORT", "8080"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "json"),
		CarriersFile:      getenv("CARRIERS_FILE", "carriers.yaml"),
		FeedWebhookSecret: os.Getenv("FEED_WEBHOOK_SECRET"),
		FeedCarrierFamily: getenv("FEED_CARRIER_FAMILY", "feed"),

		DBMaxConns:         int32(getenvInt("DB_MAX_CONNS")),
		DBStatementTimeout: getenvDuration("DB_STATEMENT_TIMEOUT"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getenvInt returns 0 for unset or malformed values.
func getenvInt(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// getenvDuration accepts Go durations such as "1500ms" or "2s".
func getenvDuration(key string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d < 0 {
		return 0
	}
	return d
}
