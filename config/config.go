package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete gateway configuration
type Config struct {
	Server        ServerConfig
	Auth          AuthConfig
	RuntimeConfig RuntimeConfig
	BudgetStore   BudgetStoreConfig
	UsageStore    UsageStoreConfig
	Providers     ProvidersConfig
	Guard         GuardConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// AuthConfig holds inbound authentication configuration. API keys are
// resolved against the runtime-config snapshot; JWTSecret enables the
// optional HS256 service-token path.
type AuthConfig struct {
	JWTSecret string
}

// RuntimeConfig locates the governance definitions file and its refresh cadence
type RuntimeConfig struct {
	Path            string
	RefreshInterval time.Duration
}

// BudgetStoreConfig selects the spend-counter backend. With an empty
// RedisAddr the gateway falls back to the in-process store.
type BudgetStoreConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// UsageStoreConfig holds the usage-sink PostgreSQL settings. With an empty
// DatabaseURL records are kept in memory (dev/test only).
type UsageStoreConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BufferSize      int
	Workers         int
}

// ProvidersConfig holds per-provider outbound client configuration
type ProvidersConfig struct {
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
}

// ProviderConfig is the common shape for one upstream provider
type ProviderConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// GuardConfig holds security-guard thresholds and the optional moderation endpoint
type GuardConfig struct {
	WarnThreshold     float64
	BlockThreshold    float64
	ModerationEnabled bool
	ModerationAPIKey  string
	ModerationBaseURL string
	ModerationTimeout time.Duration
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 120*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		RuntimeConfig: RuntimeConfig{
			Path:            getEnv("GATEWAY_CONFIG_PATH", "gateway.yaml"),
			RefreshInterval: getEnvAsDuration("GATEWAY_CONFIG_REFRESH", 30*time.Second),
		},
		BudgetStore: BudgetStoreConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		UsageStore: UsageStoreConfig{
			DatabaseURL:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			BufferSize:      getEnvAsInt("USAGE_BUFFER_SIZE", 10000),
			Workers:         getEnvAsInt("USAGE_WORKERS", 4),
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIKey:     getEnv("OPENAI_API_KEY", ""),
				BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Timeout:    getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
				MaxRetries: getEnvAsInt("OPENAI_MAX_RETRIES", 2),
			},
			Anthropic: ProviderConfig{
				APIKey:     getEnv("ANTHROPIC_API_KEY", ""),
				BaseURL:    getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				Timeout:    getEnvAsDuration("ANTHROPIC_TIMEOUT", 60*time.Second),
				MaxRetries: getEnvAsInt("ANTHROPIC_MAX_RETRIES", 2),
			},
		},
		Guard: GuardConfig{
			WarnThreshold:     getEnvAsFloat("GUARD_WARN_THRESHOLD", 0.5),
			BlockThreshold:    getEnvAsFloat("GUARD_BLOCK_THRESHOLD", 0.75),
			ModerationEnabled: getEnvAsBool("GUARD_MODERATION_ENABLED", false),
			ModerationAPIKey:  getEnv("GUARD_MODERATION_API_KEY", ""),
			ModerationBaseURL: getEnv("GUARD_MODERATION_BASE_URL", ""),
			ModerationTimeout: getEnvAsDuration("GUARD_MODERATION_TIMEOUT", 5*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.RuntimeConfig.Path == "" {
		return fmt.Errorf("gateway config path is required")
	}
	if c.Guard.WarnThreshold < 0 || c.Guard.WarnThreshold > 1 {
		return fmt.Errorf("guard warn threshold must be in [0,1]")
	}
	if c.Guard.BlockThreshold < 0 || c.Guard.BlockThreshold > 1 {
		return fmt.Errorf("guard block threshold must be in [0,1]")
	}
	if c.Guard.WarnThreshold > c.Guard.BlockThreshold {
		return fmt.Errorf("guard warn threshold %.2f exceeds block threshold %.2f",
			c.Guard.WarnThreshold, c.Guard.BlockThreshold)
	}
	if c.Guard.ModerationEnabled && c.Guard.ModerationAPIKey == "" {
		return fmt.Errorf("moderation detector enabled but GUARD_MODERATION_API_KEY is not set")
	}
	if c.IsProduction() {
		if c.Providers.OpenAI.APIKey == "" && c.Providers.Anthropic.APIKey == "" {
			return fmt.Errorf("at least one LLM provider must be configured in production")
		}
		if c.BudgetStore.RedisAddr == "" {
			return fmt.Errorf("redis budget store is required in production")
		}
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
