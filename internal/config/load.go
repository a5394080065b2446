package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path (missing file means defaults), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults + env only
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv maps AIGW_* variables onto the config. Only the knobs operators
// actually flip in deployment get an override.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "AIGW_HOST")
	setInt(&cfg.Server.Port, "AIGW_PORT")
	setBool(&cfg.Server.Debug, "AIGW_DEBUG")

	setString(&cfg.Logging.Level, "AIGW_LOG_LEVEL")
	setString(&cfg.Logging.File, "AIGW_LOG_FILE")

	setString(&cfg.Storage.Backend, "AIGW_STORAGE_BACKEND")
	setString(&cfg.Storage.SQLitePath, "AIGW_SQLITE_PATH")
	setString(&cfg.Storage.PostgresDSN, "AIGW_POSTGRES_DSN")

	setString(&cfg.Providers.OpenAI.BaseURL, "AIGW_OPENAI_BASE_URL")
	setString(&cfg.Providers.Claude.BaseURL, "AIGW_CLAUDE_BASE_URL")
	setString(&cfg.Providers.Gemini.BaseURL, "AIGW_GEMINI_BASE_URL")
	setString(&cfg.Providers.GLM.BaseURL, "AIGW_GLM_BASE_URL")

	setString(&cfg.Summarizer.Model, "AIGW_SUMMARIZER_MODEL")
	setString(&cfg.Summarizer.APIKey, "AIGW_SUMMARIZER_API_KEY")

	setString(&cfg.Management.AdminEmail, "AIGW_ADMIN_EMAIL")
	setString(&cfg.Management.AdminPassword, "AIGW_ADMIN_PASSWORD")
	setBool(&cfg.Management.Enabled, "AIGW_MANAGEMENT_ENABLED")
	setDuration(&cfg.Management.SessionTTL, "AIGW_SESSION_TTL")

	setString(&cfg.Balancer, "AIGW_BALANCER")

	setBool(&cfg.RiskControl.Enabled, "AIGW_RISK_CONTROL_ENABLED")

	setBool(&cfg.Tracing.Enabled, "AIGW_TRACING_ENABLED")
	setString(&cfg.Tracing.Endpoint, "AIGW_TRACING_ENDPOINT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}
