package config_test

import (
	"testing"
	"time"

	"github.com/Tonic56/stock-trading-simulator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustLoad(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ALPHA_VANTAGE_API_KEY", "demo")
	t.Setenv("BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("BATCH_POLICY", "partial")

	cfg := config.MustLoad()
	require.NotNil(t, cfg)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, uint16(8080), cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "secret", cfg.Security.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.Security.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.Quote.Timeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "10000.00", cfg.Trading.InitialCash)
	assert.Equal(t, "partial", cfg.Trading.BatchPolicy)
}

func TestMustLoadSink(t *testing.T) {
	t.Setenv("CLICKHOUSE_TABLE", "ledger_events")

	cfg := config.MustLoadSink()
	require.NotNil(t, cfg)

	assert.Equal(t, "ledger_events", cfg.ClickHouse.Table)
	assert.Equal(t, "trade-sink", cfg.Kafka.GroupID)
	assert.Equal(t, 2*time.Second, cfg.ClickHouse.FlushInterval)
}
