// Package config provides environment-variable-first configuration loading
// with an optional YAML or TOML file as the base layer.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

const (
	defaultWebhookBaseURL = "https://discord.com/api/webhooks"
	defaultWebhookTimeout = "30s"
)

// logLevels are the accepted values for Logging.Level.
var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// Config holds the complete application configuration.
type Config struct {
	SMTP    SMTPConfig    `yaml:"smtp" toml:"smtp"`
	TLS     TLSConfig     `yaml:"tls" toml:"tls"`
	Webhook WebhookConfig `yaml:"webhook" toml:"webhook"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// SMTPConfig holds SMTP listener configuration.
type SMTPConfig struct {
	Port           int    `yaml:"port" toml:"port"`
	Host           string `yaml:"host" toml:"host"`
	Hostname       string `yaml:"hostname" toml:"hostname"`
	MaxMessageSize int64  `yaml:"max_message_size" toml:"max_message_size"`
}

// TLSConfig holds STARTTLS settings. When Enabled is false, clients may
// authenticate over an unencrypted connection.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

// WebhookConfig holds outbound delivery settings.
type WebhookConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Timeout string `yaml:"timeout" toml:"timeout"`
	DryRun  bool   `yaml:"dry_run" toml:"dry_run"`
}

// MetricsConfig holds the metrics endpoint address. Empty disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML or TOML file, selected by
// extension, then overrides it with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}

	// Environment variables always override file values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and normalises the log level.
func (c *Config) Validate() error {
	if c.SMTP.Port == 0 {
		return fmt.Errorf("SMTP_PORT is required")
	}
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535, got %d", c.SMTP.Port)
	}
	if c.SMTP.MaxMessageSize < 0 {
		return fmt.Errorf("SMTP_MAX_MESSAGE_SIZE must not be negative")
	}

	u, err := url.Parse(c.Webhook.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid WEBHOOK_BASE_URL: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("WEBHOOK_BASE_URL must be an absolute http(s) URL, got %q", c.Webhook.BaseURL)
	}

	if _, err := c.WebhookTimeout(); err != nil {
		return err
	}

	c.Logging.Level = normalizeLogLevel(c.Logging.Level)
	return nil
}

// ListenAddr returns the host:port the SMTP listener binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.SMTP.Host, strconv.Itoa(c.SMTP.Port))
}

// WebhookTimeout parses Webhook.Timeout.
func (c *Config) WebhookTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Webhook.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %s", d)
	}
	return d, nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Hostname = "localhost"
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.TLS.Enabled = true
	c.Webhook.BaseURL = defaultWebhookBaseURL
	c.Webhook.Timeout = defaultWebhookTimeout
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("environment variable SMTP_PORT must be a number: %w", err)
		}
		c.SMTP.Port = port
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_HOSTNAME"); v != "" {
		c.SMTP.Hostname = v
	}
	if v := os.Getenv("SMTP_MAX_MESSAGE_SIZE"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("environment variable SMTP_MAX_MESSAGE_SIZE must be a number: %w", err)
		}
		c.SMTP.MaxMessageSize = size
	}

	if v := os.Getenv("SMTP_ENABLE_TLS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("environment variable SMTP_ENABLE_TLS must be a boolean: %w", err)
		}
		c.TLS.Enabled = enabled
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}

	if v := os.Getenv("WEBHOOK_BASE_URL"); v != "" {
		c.Webhook.BaseURL = v
	}
	if v := os.Getenv("WEBHOOK_TIMEOUT"); v != "" {
		c.Webhook.Timeout = v
	}
	if v := os.Getenv("WEBHOOK_DRY_RUN"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("environment variable WEBHOOK_DRY_RUN must be a boolean: %w", err)
		}
		c.Webhook.DryRun = dryRun
	}

	if v := os.Getenv("METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}

	if v := os.Getenv("SMTP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// normalizeLogLevel lowercases level and falls back to info for unknown names.
func normalizeLogLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	for _, l := range logLevels {
		if l == level {
			return level
		}
	}
	return "info"
}
