package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/username/chatkit/internal/pkg/configutil"
	"github.com/username/chatkit/internal/pkg/constants"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Database DatabaseConfig `mapstructure:"database"`
	Endpoint EndpointConfig `mapstructure:"endpoint"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	CORSEnabled bool   `mapstructure:"cors_enabled"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL       string          `mapstructure:"url"`
	JetStream JetStreamConfig `mapstructure:"jetstream"`
}

// JetStreamConfig holds JetStream-specific configuration
type JetStreamConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	RetentionDays int  `mapstructure:"retention_days"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// EndpointConfig holds model endpoint configuration. Host and port are kept
// separate so each can be overridden independently; BaseURL assembles them.
type EndpointConfig struct {
	Provider string `mapstructure:"provider"` // "ollama" or "openai"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	APIKey   string `mapstructure:"api_key"`
}

// BaseURL returns the endpoint base URL assembled from host and port.
func (e EndpointConfig) BaseURL() string {
	host := strings.TrimSuffix(e.Host, "/")
	if strings.Contains(host, "://") {
		return fmt.Sprintf("%s:%d", host, e.Port)
	}
	return fmt.Sprintf("http://%s:%d", host, e.Port)
}

// ChatConfig holds conversation behavior configuration
type ChatConfig struct {
	DefaultModel         string `mapstructure:"default_model"`
	SystemPrompt         string `mapstructure:"system_prompt"`
	UserName             string `mapstructure:"user_name"`
	UseLLMTitles         bool   `mapstructure:"use_llm_titles"`
	BatchThreshold       int    `mapstructure:"batch_threshold"`
	FlushIntervalMS      int    `mapstructure:"flush_interval_ms"`
	ReachabilityInterval int    `mapstructure:"reachability_interval_s"`
}

// FlushInterval returns the batching flush interval as a duration.
func (c ChatConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// ReachabilityPollInterval returns the reachability poll interval as a
// duration.
func (c ChatConfig) ReachabilityPollInterval() time.Duration {
	return time.Duration(c.ReachabilityInterval) * time.Second
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			CORSEnabled: true,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
			JetStream: JetStreamConfig{
				Enabled:       true,
				RetentionDays: 7,
			},
		},
		Database: DatabaseConfig{
			Path:           constants.DefaultDBPath,
			MigrationsPath: constants.DefaultMigrationsPath,
		},
		Endpoint: EndpointConfig{
			Provider: "ollama",
			Host:     "localhost",
			Port:     11434,
		},
		Chat: ChatConfig{
			DefaultModel:         "qwen3:0.6b",
			SystemPrompt:         "You are a helpful assistant.",
			UseLLMTitles:         true,
			BatchThreshold:       constants.DefaultBatchThreshold,
			FlushIntervalMS:      int(constants.DefaultFlushInterval / time.Millisecond),
			ReachabilityInterval: int(constants.DefaultReachabilityInterval / time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from files and environment variables
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./deployments/config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Environment variable support
	v.SetEnvPrefix("CHATKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay, we'll use defaults + env vars
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return configutil.NewValidator().
		IntRange("server.port", c.Server.Port, 1, 65535).
		RequiredString("database.path", c.Database.Path).
		RequiredString("nats.url", c.NATS.URL).
		OneOf("endpoint.provider", c.Endpoint.Provider, []string{"ollama", "openai"}).
		RequiredString("endpoint.host", c.Endpoint.Host).
		IntRange("endpoint.port", c.Endpoint.Port, 1, 65535).
		RequiredString("chat.default_model", c.Chat.DefaultModel).
		RequiredInt("chat.batch_threshold", c.Chat.BatchThreshold).
		RequiredInt("chat.flush_interval_ms", c.Chat.FlushIntervalMS).
		RequiredInt("chat.reachability_interval_s", c.Chat.ReachabilityInterval).
		OneOf("logging.level", c.Logging.Level, []string{"debug", "info", "warn", "error", "fatal"}).
		OneOf("logging.format", c.Logging.Format, []string{"text", "json"}).
		Result()
}
