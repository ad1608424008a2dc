package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Security SecurityConfig `mapstructure:"security"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	WS       WSConfig       `mapstructure:"ws"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type SecurityConfig struct {
	// EncryptionKey protects stored profile facts. Base64, 32 bytes.
	EncryptionKey string          `mapstructure:"encryption_key"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds REST traffic per user. Chat turns have their own
// quota; this only shields the HTTP surface.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type LLMConfig struct {
	DefaultProvider string          `mapstructure:"default_provider"`
	OpenAI          OpenAIConfig    `mapstructure:"openai"`
	Anthropic       AnthropicConfig `mapstructure:"anthropic"`
	Gemini          GeminiConfig    `mapstructure:"gemini"`
	Ollama          OllamaConfig    `mapstructure:"ollama"`
	DeepSeek        DeepSeekConfig  `mapstructure:"deepseek"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OllamaConfig struct {
	Host         string `mapstructure:"host"`
	DefaultModel string `mapstructure:"default_model"`
}

type DeepSeekConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// QuotaConfig bounds what free accounts can send. Premium accounts skip
// the daily and upload limits but not the length check.
type QuotaConfig struct {
	FreeDailyMessages int           `mapstructure:"free_daily_messages"`
	MaxMessageChars   int           `mapstructure:"max_message_chars"`
	FreeDailyUploads  int           `mapstructure:"free_daily_uploads"`
	BurstLimit        int           `mapstructure:"burst_limit"`
	BurstWindow       time.Duration `mapstructure:"burst_window"`
}

// ChatConfig tunes prompt building and the generation cycle.
type ChatConfig struct {
	HistoryBudgetTokens int           `mapstructure:"history_budget_tokens"`
	HistoryDepth        int           `mapstructure:"history_depth"`
	ReplyMaxTokens      int           `mapstructure:"reply_max_tokens"`
	Temperature         float64       `mapstructure:"temperature"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
	GenerationTimeout   time.Duration `mapstructure:"generation_timeout"`
	StyleEvery          int           `mapstructure:"style_every"`
	Retry               RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

// PipelineConfig tunes the side-effect workers.
type PipelineConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	MaxDeliveries  int           `mapstructure:"max_deliveries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	ConflictWindow time.Duration `mapstructure:"conflict_window"`
	ReminderEvery  time.Duration `mapstructure:"reminder_every"`
	ReminderWindow time.Duration `mapstructure:"reminder_window"`
}

// WSConfig tunes gateway connections.
type WSConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// PingPeriod returns the keepalive interval, kept under PongWait so pings
// always arrive before the read deadline.
func (c WSConfig) PingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File enables a rotating log file alongside stderr when non-empty.
	File        string        `mapstructure:"file"`
	MaxAgeDays  int           `mapstructure:"max_age_days"`
	RotateEvery time.Duration `mapstructure:"rotate_every"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file path
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(configPath); !os.IsNotExist(statErr) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
		// Config file not found, use defaults and env vars
	}

	// Override with environment variables
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.middleware_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Security
	v.SetDefault("security.rate_limit.requests_per_minute", 60)
	v.SetDefault("security.rate_limit.burst", 20)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cyrano")
	v.SetDefault("database.database", "cyrano")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Auth
	v.SetDefault("auth.access_token_ttl", "24h")

	// LLM
	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.openai.model", "gpt-4o")
	v.SetDefault("llm.ollama.host", "http://localhost:11434")
	v.SetDefault("llm.ollama.default_model", "llama3")

	// Quota
	v.SetDefault("quota.free_daily_messages", 20)
	v.SetDefault("quota.max_message_chars", 2000)
	v.SetDefault("quota.free_daily_uploads", 5)
	v.SetDefault("quota.burst_limit", 10)
	v.SetDefault("quota.burst_window", "30s")

	// Chat
	v.SetDefault("chat.history_budget_tokens", 3000)
	v.SetDefault("chat.history_depth", 20)
	v.SetDefault("chat.reply_max_tokens", 600)
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.lock_ttl", "90s")
	v.SetDefault("chat.generation_timeout", "60s")
	v.SetDefault("chat.style_every", 10)
	v.SetDefault("chat.retry.max_attempts", 3)
	v.SetDefault("chat.retry.initial_delay", "500ms")
	v.SetDefault("chat.retry.max_delay", "8s")
	v.SetDefault("chat.retry.backoff_factor", 2.0)

	// Pipeline
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("pipeline.max_deliveries", 3)
	v.SetDefault("pipeline.retry_delay", "5s")
	v.SetDefault("pipeline.conflict_window", "1h")
	v.SetDefault("pipeline.reminder_every", "1m")
	v.SetDefault("pipeline.reminder_window", "15m")

	// WebSocket
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.max_message_size", 8192)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("logging.rotate_every", "24h")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.password", "POSTGRES_PASSWORD")

	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	// Security
	v.BindEnv("security.encryption_key", "ENCRYPTION_KEY")

	// LLM API Keys
	v.BindEnv("llm.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("llm.deepseek.api_key", "DEEPSEEK_API_KEY")
	v.BindEnv("llm.ollama.host", "OLLAMA_HOST")
}
