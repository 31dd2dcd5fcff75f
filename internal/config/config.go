// Package config loads server configuration from defaults, an optional YAML
// file and GROUPSPLIT_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mmynk/groupsplit/internal/calculator"
)

// EnvPrefix prefixes every environment override, e.g. GROUPSPLIT_SERVER_PORT.
const EnvPrefix = "GROUPSPLIT"

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the server.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Log     LogConfig     `mapstructure:"log"`
	Auth    AuthConfig    `mapstructure:"auth"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
}

// StorageConfig selects and configures the store.
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	SQLitePath       string `mapstructure:"sqlite_path"`
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	PostgresMaxConns int    `mapstructure:"postgres_max_conns"`
}

// LedgerConfig holds aggregation settings.
type LedgerConfig struct {
	// Strategy is the default settlement strategy name.
	Strategy string `mapstructure:"strategy"`
	// TimeZone is the IANA zone used for monthly profile buckets when the
	// caller does not send one.
	TimeZone string `mapstructure:"time_zone"`
	// ActivityLimit caps ListActivities responses.
	ActivityLimit int `mapstructure:"activity_limit"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig enables bearer-token identity when JWTSecret is set.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	Issuer        string        `mapstructure:"issuer"`
	TokenDuration time.Duration `mapstructure:"token_duration"`
	Required      bool          `mapstructure:"required"`
}

// AMQPConfig enables cross-instance change notifications when URL is set.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.metrics_enabled", true)

	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite_path", "./data/groupsplit.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.postgres_max_conns", 10)

	v.SetDefault("ledger.strategy", calculator.DefaultStrategy)
	v.SetDefault("ledger.time_zone", "UTC")
	v.SetDefault("ledger.activity_limit", 50)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "groupsplit")
	v.SetDefault("auth.token_duration", 24*time.Hour)
	v.SetDefault("auth.required", false)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "groupsplit.changes")
}

// Load reads configuration. configPath may be empty to use defaults and
// environment variables only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Location returns the configured calendar for profile months.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Ledger.TimeZone)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Validate validates the configuration and returns an error listing every
// problem found.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.Server.ShutdownTimeout))
	}

	validBackends := []string{BackendSQLite, BackendPostgres}
	switch {
	case !slices.Contains(validBackends, c.Storage.Backend):
		problems = append(problems, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.Storage.Backend, validBackends))
	case c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath == "":
		problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
	case c.Storage.Backend == BackendPostgres && c.Storage.PostgresDSN == "":
		problems = append(problems, "PostgreSQL DSN cannot be empty when using postgres backend")
	}
	if c.Storage.Backend == BackendPostgres && c.Storage.PostgresMaxConns < 1 {
		problems = append(problems, fmt.Sprintf("invalid postgres max conns %d: must be at least 1", c.Storage.PostgresMaxConns))
	}

	if _, err := calculator.StrategyByName(c.Ledger.Strategy); err != nil {
		problems = append(problems, fmt.Sprintf("invalid settlement strategy '%s': must be one of %v", c.Ledger.Strategy, calculator.StrategyNames()))
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("invalid time zone '%s': %v", c.Ledger.TimeZone, err))
	}
	if c.Ledger.ActivityLimit < 1 || c.Ledger.ActivityLimit > 1000 {
		problems = append(problems, fmt.Sprintf("invalid activity limit %d: must be between 1 and 1000", c.Ledger.ActivityLimit))
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		problems = append(problems, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.Log.Format))
	}

	if c.Auth.Required && c.Auth.JWTSecret == "" {
		problems = append(problems, "JWT secret is required when auth is required")
	}
	if c.Auth.JWTSecret != "" && c.Auth.TokenDuration <= 0 {
		problems = append(problems, fmt.Sprintf("invalid token duration %v: must be positive", c.Auth.TokenDuration))
	}

	if c.AMQP.URL != "" {
		if parsedURL, err := url.Parse(c.AMQP.URL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQP.URL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQP.Exchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}

	return nil
}
