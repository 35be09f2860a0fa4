package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	PriceFeed PriceFeedConfig `yaml:"pricefeed"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Game      GameConfig      `yaml:"game"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	Enabled       bool          `yaml:"enabled"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// PriceFeedConfig holds the upstream market data configuration
type PriceFeedConfig struct {
	BaseURL       string        `yaml:"base_url"`
	StreamURL     string        `yaml:"stream_url"`
	Symbol        string        `yaml:"symbol"`
	Interval      string        `yaml:"interval"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	StreamEnabled bool          `yaml:"stream_enabled"`
}

// SchedulerConfig holds the round lifecycle worker configuration
type SchedulerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SettleInterval time.Duration `yaml:"settle_interval"`
}

// GameConfig holds game rule configuration
type GameConfig struct {
	OpenDuration   time.Duration `yaml:"open_duration"`   // predictions accepted for this long after start_at
	TargetHorizon  time.Duration `yaml:"target_horizon"`  // start_at to the judged price
	StartingPoints int64         `yaml:"starting_points"` // balance granted to a new player
	HistoryWindow  time.Duration `yaml:"history_window"`  // chart lookback before start_at
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "game-predictions"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "prediction-consumer"
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Price feed defaults
	if c.PriceFeed.BaseURL == "" {
		c.PriceFeed.BaseURL = "https://api.binance.com"
	}
	if c.PriceFeed.StreamURL == "" {
		c.PriceFeed.StreamURL = "wss://stream.binance.com:9443/ws"
	}
	if c.PriceFeed.Symbol == "" {
		c.PriceFeed.Symbol = "BTCUSDT"
	}
	if c.PriceFeed.Interval == "" {
		c.PriceFeed.Interval = "1h"
	}
	if c.PriceFeed.HTTPTimeout == 0 {
		c.PriceFeed.HTTPTimeout = 10 * time.Second
	}

	// Scheduler defaults
	if c.Scheduler.SettleInterval == 0 {
		c.Scheduler.SettleInterval = 1 * time.Minute
	}

	// Game defaults
	if c.Game.OpenDuration == 0 {
		c.Game.OpenDuration = 30 * time.Minute
	}
	if c.Game.TargetHorizon == 0 {
		c.Game.TargetHorizon = 4 * time.Hour
	}
	if c.Game.StartingPoints == 0 {
		c.Game.StartingPoints = 1000
	}
	if c.Game.HistoryWindow == 0 {
		c.Game.HistoryWindow = 24 * time.Hour
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Scheduler.Enabled = true
	return cfg
}
