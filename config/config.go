package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything main needs to wire the service. Values come from
// the environment, optionally seeded from a .env file.
type Config struct {
	DatabaseURL  string
	ListenAddr   string
	RatesAPIURL  string
	RatesAPIKey  string
	RatesTTL     time.Duration
	KafkaBrokers []string
}

func Load() (Config, error) {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ListenAddr:  getenvDefault("LISTEN_ADDR", ":5000"),
		RatesAPIURL: getenvDefault("RATES_API_URL", "https://api.freecurrencyapi.com"),
		RatesAPIKey: os.Getenv("RATES_API_KEY"),
		RatesTTL:    time.Hour,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	if raw := os.Getenv("RATES_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parsing RATES_TTL: %w", err)
		}
		cfg.RatesTTL = ttl
	}

	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, broker := range strings.Split(raw, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
