// Package config provides configuration management using viper.
// It supports loading from YAML files, an optional .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
// IdleTxTimeout ends sessions left idle inside a transaction, so an abandoned
// claim cannot keep its progress row locked.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	IdleTxTimeout   time.Duration `mapstructure:"idle_tx_timeout"`
}

// TelegramConfig holds the bot token used to sign Mini App init data and
// the launcher bot settings.
type TelegramConfig struct {
	BotToken    string        `mapstructure:"bot_token"`
	WebAppURL   string        `mapstructure:"webapp_url"`
	InitDataTTL time.Duration `mapstructure:"init_data_ttl"`
}

// TasksConfig holds task system configuration.
type TasksConfig struct {
	// WaitTimeMs is the minimum dwell time between starting and claiming a VISIT task.
	WaitTimeMs int64  `mapstructure:"wait_time_ms"`
	SeedFile   string `mapstructure:"seed_file"`
}

// AdminConfig holds admin endpoint configuration.
type AdminConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	ExportPageSize int  `mapstructure:"export_page_size"`
}

// RateLimitConfig holds per-IP limits for the public API.
type RateLimitConfig struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// WaitDuration returns the VISIT task wait time as a duration.
func (t TasksConfig) WaitDuration() time.Duration {
	return time.Duration(t.WaitTimeMs) * time.Millisecond
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	// A missing .env is fine; deployments set real env vars.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., TELEGRAM_BOT_TOKEN, DATABASE_HOST, TASKS_WAIT_TIME_MS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Kept for compatibility with existing deployments of the web client.
	if err := v.BindEnv("admin.enabled", "ADMIN_ENABLED", "ACCESS_ADMIN"); err != nil {
		return nil, fmt.Errorf("failed to bind admin env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "clicker")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "clicker")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.idle_tx_timeout", "10s")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.webapp_url", "")
	v.SetDefault("telegram.init_data_ttl", "24h")

	v.SetDefault("tasks.wait_time_ms", 30000)
	v.SetDefault("tasks.seed_file", "")

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.export_page_size", 100000)

	v.SetDefault("ratelimit.max", 60)
	v.SetDefault("ratelimit.window", "1m")
}
