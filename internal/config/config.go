package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env        string `env:"ENV" env-default:"local"`
	GRPC       GRPCConfig
	HTTP       HTTPConfig
	Database   DBConfig
	Redis      RedisConfig
	Quote      QuoteConfig
	Kafka      KafkaConfig
	ClickHouse ClickHouseConfig
	Security   SecConfig
	Trading    TradingConfig
}

type GRPCConfig struct {
	Port             uint16        `env:"GRPC_PORT" env-default:"50053"`
	EnableReflection bool          `env:"GRPC_ENABLE_REFLECTION" env-default:"true"`
	HealthInterval   time.Duration `env:"GRPC_HEALTH_INTERVAL" env-default:"15s"`
}

type HTTPConfig struct {
	Port           uint16        `env:"HTTP_PORT" env-default:"8080"`
	Timeout        time.Duration `env:"HTTP_TIMEOUT" env-default:"30s"`
	AllowedOrigins []string      `env:"HTTP_ALLOWED_ORIGINS" env-default:"*" env-separator:","`
}

type DBConfig struct {
	Host     string `env:"POSTGRES_HOST" env-default:"localhost"`
	Port     uint16 `env:"POSTGRES_PORT" env-default:"5432"`
	User     string `env:"POSTGRES_USER" env-default:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" env-default:"postgres"`
	DBName   string `env:"POSTGRES_DB" env-default:"finance"`
}

type RedisConfig struct {
	Addr         string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password     string `env:"REDIS_PASSWORD" env-default:""`
	DB           int    `env:"REDIS_DB" env-default:"0"`
	TradeChannel string `env:"REDIS_TRADE_CHANNEL" env-default:"ledger.trades"`
}

type QuoteConfig struct {
	BaseURL    string        `env:"QUOTE_BASE_URL" env-default:"https://www.alphavantage.co"`
	APIKey     string        `env:"ALPHA_VANTAGE_API_KEY" env-required:"true"`
	Timeout    time.Duration `env:"QUOTE_TIMEOUT" env-default:"5s"`
	RatePerMin int           `env:"QUOTE_RATE_PER_MIN" env-default:"75"`
	CacheTTL   time.Duration `env:"QUOTE_CACHE_TTL" env-default:"1m"`
}

type KafkaConfig struct {
	Enabled      bool          `env:"KAFKA_ENABLED" env-default:"false"`
	Brokers      []string      `env:"BROKERS" env-default:"localhost:9092" env-separator:","`
	Topic        string        `env:"TRADES_TOPIC" env-default:"ledger.trades"`
	GroupID      string        `env:"KAFKA_GROUP_ID" env-default:"trade-sink"`
	BatchSize    int           `env:"BATCH_SIZE" env-default:"100"`
	BatchTimeout time.Duration `env:"BATCH_TIMEOUT" env-default:"1s"`
	RequiredAcks int           `env:"ACK" env-default:"1"`
	MaxAttempts  int           `env:"MAX_ATTEMPTS" env-default:"3"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" env-default:"10s"`
}

type ClickHouseConfig struct {
	Addr          string        `env:"CLICKHOUSE_ADDR" env-default:"localhost:9000"`
	Database      string        `env:"CLICKHOUSE_DB" env-default:"default"`
	User          string        `env:"CLICKHOUSE_USER" env-default:"default"`
	Password      string        `env:"CLICKHOUSE_PASSWORD" env-default:""`
	Table         string        `env:"CLICKHOUSE_TABLE" env-default:"trade_events"`
	BatchSize     int           `env:"CLICKHOUSE_BATCH_SIZE" env-default:"500"`
	FlushInterval time.Duration `env:"CLICKHOUSE_FLUSH_INTERVAL" env-default:"2s"`
}

type SecConfig struct {
	JWTSecret string        `env:"JWT_SECRET" env-required:"true"`
	TokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"24h"`
}

type TradingConfig struct {
	InitialCash string `env:"INITIAL_CASH" env-default:"10000.00"`
	BatchPolicy string `env:"BATCH_POLICY" env-default:"atomic"`
}

// SinkConfig is the subset read by the trade sink, which needs neither
// quote credentials nor a signing secret.
type SinkConfig struct {
	Env        string `env:"ENV" env-default:"local"`
	Kafka      KafkaConfig
	ClickHouse ClickHouseConfig
}

func MustLoad() *Config {
	var cfg Config
	mustRead(&cfg)
	return &cfg
}

func MustLoadSink() *SinkConfig {
	var cfg SinkConfig
	mustRead(&cfg)
	return &cfg
}

func mustRead(cfg any) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment variables")
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		slog.Error("failed to read environment variables", "error", err)
		os.Exit(1)
	}
}
