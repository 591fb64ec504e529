// Package config loads application configuration from an optional YAML file
// and NOTIFY_-prefixed environment variables. Environment variables win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "NOTIFY_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	Resolver      ResolverConfig      `koanf:"resolver"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// ResolverConfig points at the upstream event and calendar services.
type ResolverConfig struct {
	EventServiceURL    string        `koanf:"event_service_url"`
	CalendarServiceURL string        `koanf:"calendar_service_url"`
	RequestTimeout     time.Duration `koanf:"request_timeout"`
}

// NotificationsConfig contains dispatch settings.
type NotificationsConfig struct {
	Enabled   bool            `koanf:"enabled"`
	Email     EmailConfig     `koanf:"email"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Retry     RetryConfig     `koanf:"retry"`
	Retention RetentionConfig `koanf:"retention"`
}

// EmailConfig contains SMTP delivery settings.
type EmailConfig struct {
	Enabled      bool          `koanf:"enabled"`
	SMTPHost     string        `koanf:"smtp_host"`
	SMTPPort     int           `koanf:"smtp_port"`
	SMTPUser     string        `koanf:"smtp_user"`
	SMTPPassword string        `koanf:"smtp_password"`
	FromAddress  string        `koanf:"from_address"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	RateLimit    float64       `koanf:"rate_limit"`
}

// SchedulerConfig contains dispatch cycle settings.
type SchedulerConfig struct {
	Interval  time.Duration `koanf:"interval"`
	BatchSize int           `koanf:"batch_size"`
}

// RetryConfig contains delivery retry settings.
type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
}

// RetentionConfig controls cleanup of old sent/error notifications.
type RetentionConfig struct {
	Enabled  bool          `koanf:"enabled"`
	MaxAge   time.Duration `koanf:"max_age"`
	Interval time.Duration `koanf:"interval"`
}

// Default returns the configuration defaults. Loading merges file and
// environment values on top of these.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Resolver: ResolverConfig{
			RequestTimeout: 10 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Email: EmailConfig{
				SMTPPort:    587,
				DialTimeout: 10 * time.Second,
			},
			Scheduler: SchedulerConfig{
				Interval:  15 * time.Second,
				BatchSize: 25,
			},
			Retry: RetryConfig{
				MaxAttempts:    5,
				InitialBackoff: 30 * time.Second,
				MaxBackoff:     15 * time.Minute,
			},
			Retention: RetentionConfig{
				Enabled:  false,
				MaxAge:   30 * 24 * time.Hour,
				Interval: time.Hour,
			},
		},
	}
}

// Load reads configuration from the given YAML file (skipped if path is
// empty or the file does not exist) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	// NOTIFY_DATABASE__URL maps to database.url; the double underscore
	// separates levels so that single underscores survive in key names.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Resolver.EventServiceURL == "" {
		return fmt.Errorf("resolver.event_service_url is required")
	}
	if c.Resolver.CalendarServiceURL == "" {
		return fmt.Errorf("resolver.calendar_service_url is required")
	}
	return nil
}
