// Package config loads and validates the recovery API server configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the recovery API server configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	JWKS          JWKSConfig          `mapstructure:"jwks"`
	KeyManagement KeyManagementConfig `mapstructure:"key_management"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// LedgerConfig contains settings for the external recovery-contract
// gateway mirrored to on a best-effort basis
type LedgerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// NotifyConfig contains settings for the outbound notification service
// used for guardian invite delivery (fire-and-forget)
type NotifyConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// JWKSConfig contains JWKS configuration for owner-session JWT validation
type JWKSConfig struct {
	URL    string `mapstructure:"url"`
	Issuer string `mapstructure:"issuer"`
}

// KeyManagementConfig names the environment variable holding the
// base64-encoded 32-byte master key for payload sealing at rest
type KeyManagementConfig struct {
	MasterKeyEnv string `mapstructure:"master_key_env"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// MetricsConfig contains metrics exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// GetConnectionString builds a postgres connection string from the config
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "recovery_api")

	// Ledger mirror defaults
	viper.SetDefault("ledger.enabled", false)
	viper.SetDefault("ledger.request_timeout", "10s")

	// Notification defaults
	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.request_timeout", "10s")

	// Key management defaults
	viper.SetDefault("key_management.master_key_env", "RECOVERY_MASTER_KEY")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Shutdown defaults
	viper.SetDefault("shutdown.timeout", "30s")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Ledger.Enabled && config.Ledger.BaseURL == "" {
		return fmt.Errorf("ledger.base_url is required when ledger.enabled is true")
	}
	if config.Notify.Enabled && config.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url is required when notify.enabled is true")
	}
	return nil
}
