package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Server     ServerConfig     `envconfig:"SERVER"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Reasoner   ReasonerConfig   `envconfig:"REASONER"`
	Gateway    GatewayConfig    `envconfig:"GATEWAY"`
	Trading    TradingConfig    `envconfig:"TRADING"`
	Sessions   SessionConfig    `envconfig:"SESSIONS"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// ServerConfig represents the HTTP/WebSocket surface
type ServerConfig struct {
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	HealthPort      int           `envconfig:"SERVER_HEALTH_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig represents PostgreSQL connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"twse_agents"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"migrations"`
}

// RedisConfig represents the optional distributed-lock backend
type RedisConfig struct {
	Enabled bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Addr    string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	DB      int    `envconfig:"REDIS_DB" default:"0"`
}

// ClickHouseConfig represents the optional metrics sink
type ClickHouseConfig struct {
	Enabled bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	DSN     string `envconfig:"CLICKHOUSE_DSN" default:"clickhouse://localhost:9000/default"`
}

// ReasonerConfig represents the LLM backend used to drive sessions
type ReasonerConfig struct {
	APIKey         string        `envconfig:"REASONER_API_KEY" required:"false"`
	BaseURL        string        `envconfig:"REASONER_BASE_URL" default:""`
	DefaultModel   string        `envconfig:"REASONER_DEFAULT_MODEL" default:"gpt-4o"`
	RequestTimeout time.Duration `envconfig:"REASONER_REQUEST_TIMEOUT" default:"60s"`
	Temperature    float64       `envconfig:"REASONER_TEMPERATURE" default:"0.7"`
}

// GatewayConfig represents the market-data rate-limit and cache gateway
type GatewayConfig struct {
	PerSymbolInterval time.Duration `envconfig:"GATEWAY_PER_SYMBOL_INTERVAL" default:"30s"`
	MaxPerMinute      int           `envconfig:"GATEWAY_MAX_PER_MINUTE" default:"20"`
	MaxPerSecond      int           `envconfig:"GATEWAY_MAX_PER_SECOND" default:"2"`
	CacheTTL          time.Duration `envconfig:"GATEWAY_CACHE_TTL" default:"30s"`
	CacheMaxEntries   int           `envconfig:"GATEWAY_CACHE_MAX_ENTRIES" default:"1000"`
	CacheMaxBytes     int64         `envconfig:"GATEWAY_CACHE_MAX_BYTES" default:"209715200"`
	RequestTimeout    time.Duration `envconfig:"GATEWAY_REQUEST_TIMEOUT" default:"10s"`
	UpstreamBaseURL   string        `envconfig:"GATEWAY_UPSTREAM_BASE_URL" default:"https://openapi.twse.com.tw/v1"`
}

// TradingConfig represents simulated Taiwan-market trading parameters
type TradingConfig struct {
	LotSize           int64   `envconfig:"TRADING_LOT_SIZE" default:"1000"`
	FeeRate           float64 `envconfig:"TRADING_FEE_RATE" default:"0.001425"`
	SellTaxRate       float64 `envconfig:"TRADING_SELL_TAX_RATE" default:"0.003"`
	MinTradeAmount    float64 `envconfig:"TRADING_MIN_TRADE_AMOUNT" default:"50000"`
	MaxDailyTrades    int     `envconfig:"TRADING_MAX_DAILY_TRADES" default:"20"`
	MaxPositionWeight float64 `envconfig:"TRADING_MAX_POSITION_WEIGHT" default:"0.3"`
}

// SessionConfig represents per-session budgets and supervisor timeouts
type SessionConfig struct {
	DefaultMaxTurns  int           `envconfig:"SESSIONS_DEFAULT_MAX_TURNS" default:"10"`
	WallClockBudget  time.Duration `envconfig:"SESSIONS_WALL_CLOCK_BUDGET" default:"5m"`
	ToolCallTimeout  time.Duration `envconfig:"SESSIONS_TOOL_CALL_TIMEOUT" default:"30s"`
	StopGraceTimeout time.Duration `envconfig:"SESSIONS_STOP_GRACE_TIMEOUT" default:"10s"`
}

// TelegramConfig represents the optional operator notifier
type TelegramConfig struct {
	Enabled       bool   `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken      string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID        int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
	AlertOnTrades bool   `envconfig:"TELEGRAM_ALERT_ON_TRADES" default:"true"`
	AlertOnErrors bool   `envconfig:"TELEGRAM_ALERT_ON_ERRORS" default:"true"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" default:""`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Gateway.PerSymbolInterval <= 0 {
		return fmt.Errorf("gateway per-symbol interval must be positive")
	}
	if c.Gateway.MaxPerMinute < 1 {
		return fmt.Errorf("gateway max per minute must be at least 1")
	}
	if c.Gateway.MaxPerSecond < 1 {
		return fmt.Errorf("gateway max per second must be at least 1")
	}
	if c.Trading.LotSize < 1 {
		return fmt.Errorf("lot size must be at least 1")
	}
	if c.Trading.FeeRate < 0 || c.Trading.SellTaxRate < 0 {
		return fmt.Errorf("fee and tax rates must be non-negative")
	}
	if c.Trading.MaxPositionWeight <= 0 || c.Trading.MaxPositionWeight > 1 {
		return fmt.Errorf("max_position_weight must be in (0,1]")
	}
	if c.Sessions.DefaultMaxTurns < 1 {
		return fmt.Errorf("default max turns must be at least 1")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when telegram is enabled")
	}
	if c.Telegram.Enabled && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram chat_id is required when telegram is enabled")
	}
	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
