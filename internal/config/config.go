package config

import (
	"fmt"
	"time"

	"aigateway-go/internal/riskcontrol"
)

// ServerConfig is the HTTP listener section.
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

// Addr formats the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig selects level, format, and optional file output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend     string `yaml:"backend"` // sqlite | postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ProviderConfig overrides one upstream's endpoint.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ProvidersConfig collects per-provider endpoint overrides. Empty values
// fall back to the public endpoints.
type ProvidersConfig struct {
	OpenAI ProviderConfig `yaml:"openai"`
	Claude ProviderConfig `yaml:"claude"`
	Gemini ProviderConfig `yaml:"gemini"`
	GLM    ProviderConfig `yaml:"glm"`
}

// SummarizerConfig binds the context compressor's summary strategies to a
// cheap model.
type SummarizerConfig struct {
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
}

// ManagementConfig covers the admin console surface.
type ManagementConfig struct {
	Enabled       bool          `yaml:"enabled"`
	AdminEmail    string        `yaml:"admin_email"`
	AdminPassword string        `yaml:"admin_password"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

// TracingConfig enables the OTLP exporter.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// JobsConfig tunes the background sweeps.
type JobsConfig struct {
	LogRetentionDays  int `yaml:"log_retention_days"`
	TokenSweepMinutes int `yaml:"token_sweep_minutes"`
	SessionSweepHours int `yaml:"session_sweep_hours"`
}

// Config is the full gateway configuration, loaded from YAML with
// AIGW_*-prefixed environment overrides.
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Storage     StorageConfig      `yaml:"storage"`
	Providers   ProvidersConfig    `yaml:"providers"`
	Summarizer  SummarizerConfig   `yaml:"summarizer"`
	Management  ManagementConfig   `yaml:"management"`
	Balancer    string             `yaml:"balancer"` // weighted | priority_first | least_response_time | round_robin
	RiskControl riskcontrol.Config `yaml:"risk_control"`
	Tracing     TracingConfig      `yaml:"tracing"`
	Jobs        JobsConfig         `yaml:"jobs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Logging.Level = "info"
	cfg.Logging.JSON = true
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.SQLitePath = "data/gateway.db"
	cfg.Summarizer.Model = "glm-4-flash"
	cfg.Management.Enabled = true
	cfg.Management.SessionTTL = 24 * time.Hour
	cfg.Balancer = "weighted"
	cfg.Jobs.LogRetentionDays = 30
	cfg.Jobs.TokenSweepMinutes = 5
	cfg.Jobs.SessionSweepHours = 1
	return cfg
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	switch c.Balancer {
	case "weighted", "priority_first", "least_response_time", "round_robin":
	default:
		return fmt.Errorf("unknown balancer strategy: %q", c.Balancer)
	}
	return nil
}
