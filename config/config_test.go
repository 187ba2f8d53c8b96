package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/debttracker")
	t.Setenv("RATES_API_KEY", "secret")
	t.Setenv("RATES_TTL", "30m")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/debttracker", cfg.DatabaseURL)
	assert.Equal(t, ":5000", cfg.ListenAddr)
	assert.Equal(t, "https://api.freecurrencyapi.com", cfg.RatesAPIURL)
	assert.Equal(t, 30*time.Minute, cfg.RatesTTL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/debttracker")
	t.Setenv("RATES_TTL", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.RatesTTL)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadTTL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/debttracker")
	t.Setenv("RATES_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}
