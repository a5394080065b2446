package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aigateway-go/internal/models"
)

// CacheSettings reads the singleton cache/compression row. A missing row
// (backend initialized against an older schema) yields the defaults.
func (s *Store) CacheSettings(ctx context.Context) (models.CacheSettings, error) {
	var (
		out       models.CacheSettings
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT prompt_cache_enabled, compression_enabled, compression_threshold,
		       compression_target, compression_strategy, updated_at
		FROM cache_config WHERE id = 1`).
		Scan(&out.PromptCacheEnabled, &out.CompressionEnabled, &out.CompressionThreshold,
			&out.CompressionTarget, &out.CompressionStrategy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultCacheSettings(), nil
	}
	if err != nil {
		return out, fmt.Errorf("storage: cache settings: %w", err)
	}
	out.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return out, nil
}

// UpdateCacheSettings overwrites the singleton cache/compression row.
func (s *Store) UpdateCacheSettings(ctx context.Context, c models.CacheSettings) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO cache_config
			(id, prompt_cache_enabled, compression_enabled, compression_threshold,
			 compression_target, compression_strategy, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			prompt_cache_enabled = excluded.prompt_cache_enabled,
			compression_enabled = excluded.compression_enabled,
			compression_threshold = excluded.compression_threshold,
			compression_target = excluded.compression_target,
			compression_strategy = excluded.compression_strategy,
			updated_at = excluded.updated_at`),
		c.PromptCacheEnabled, c.CompressionEnabled, c.CompressionThreshold,
		c.CompressionTarget, c.CompressionStrategy, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storage: update cache settings: %w", err)
	}
	return nil
}

// RiskControlSettings reads the singleton risk-control row.
func (s *Store) RiskControlSettings(ctx context.Context) (models.RiskControlSettings, error) {
	var (
		out       models.RiskControlSettings
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT proxy_pool_enabled, proxy_pool_strategy, rate_limit_enabled,
		       rate_limit_global_rpm, rate_limit_global_tpm, health_monitor_enabled,
		       health_monitor_interval, fingerprint_enabled, updated_at
		FROM risk_control_config WHERE id = 1`).
		Scan(&out.ProxyPoolEnabled, &out.ProxyPoolStrategy, &out.RateLimitEnabled,
			&out.RateLimitGlobalRPM, &out.RateLimitGlobalTPM, &out.HealthMonitorEnabled,
			&out.HealthMonitorInterval, &out.FingerprintEnabled, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultRiskControlSettings(), nil
	}
	if err != nil {
		return out, fmt.Errorf("storage: risk control settings: %w", err)
	}
	out.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return out, nil
}

// UpdateRiskControlSettings overwrites the singleton risk-control row.
func (s *Store) UpdateRiskControlSettings(ctx context.Context, r models.RiskControlSettings) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO risk_control_config
			(id, proxy_pool_enabled, proxy_pool_strategy, rate_limit_enabled,
			 rate_limit_global_rpm, rate_limit_global_tpm, health_monitor_enabled,
			 health_monitor_interval, fingerprint_enabled, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			proxy_pool_enabled = excluded.proxy_pool_enabled,
			proxy_pool_strategy = excluded.proxy_pool_strategy,
			rate_limit_enabled = excluded.rate_limit_enabled,
			rate_limit_global_rpm = excluded.rate_limit_global_rpm,
			rate_limit_global_tpm = excluded.rate_limit_global_tpm,
			health_monitor_enabled = excluded.health_monitor_enabled,
			health_monitor_interval = excluded.health_monitor_interval,
			fingerprint_enabled = excluded.fingerprint_enabled,
			updated_at = excluded.updated_at`),
		r.ProxyPoolEnabled, r.ProxyPoolStrategy, r.RateLimitEnabled,
		r.RateLimitGlobalRPM, r.RateLimitGlobalTPM, r.HealthMonitorEnabled,
		r.HealthMonitorInterval, r.FingerprintEnabled, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storage: update risk control settings: %w", err)
	}
	return nil
}
