// Package config provides configuration loading for Orchepy. Defaults are
// overlaid by an optional YAML file and then by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete Orchepy configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
	Whitelist WhitelistConfig `yaml:"whitelist"`
	NATS      NATSConfig      `yaml:"nats"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the listen port.
	Port int `yaml:"port"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	// URL is the Postgres connection string. Required.
	URL string `yaml:"url"`
}

// WebhookConfig toggles the case lifecycle webhooks.
type WebhookConfig struct {
	// OnCaseCreate fires the workflow webhook when a case is created.
	OnCaseCreate bool `yaml:"on_case_create"`
	// OnCaseMove fires the workflow webhook when a case changes phase.
	OnCaseMove bool `yaml:"on_case_move"`
}

// WhitelistConfig configures the source IP allowlist middleware.
type WhitelistConfig struct {
	// Enabled turns the allowlist on. Off by default.
	Enabled bool `yaml:"enabled"`
	// IPs are the allowed source addresses.
	IPs []string `yaml:"ips"`
}

// NATSConfig configures the optional NATS event ingestion bridge.
type NATSConfig struct {
	// URL is the NATS server URL (empty = bridge disabled).
	URL string `yaml:"url"`
}

// Addr returns the host:port the server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Default returns a Config with the stock defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3296,
		},
		Webhooks: WebhookConfig{
			OnCaseCreate: true,
			OnCaseMove:   true,
		},
		Whitelist: WhitelistConfig{
			Enabled: false,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (set DATABASE_URL)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Whitelist.Enabled && len(c.Whitelist.IPs) == 0 {
		return fmt.Errorf("whitelist.ips must not be empty when the whitelist is enabled")
	}
	return nil
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then environment variables, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on the configuration.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("WEBHOOK_ON_CASE_CREATE"); v != "" {
		c.Webhooks.OnCaseCreate = parseBool(v, c.Webhooks.OnCaseCreate)
	}
	if v := os.Getenv("WEBHOOK_ON_CASE_MOVE"); v != "" {
		c.Webhooks.OnCaseMove = parseBool(v, c.Webhooks.OnCaseMove)
	}
	if v := os.Getenv("WHITELIST_ENABLED"); v != "" {
		c.Whitelist.Enabled = parseBool(v, c.Whitelist.Enabled)
	}
	if v := os.Getenv("WHITELIST_IPS"); v != "" {
		c.Whitelist.IPs = splitList(v)
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
