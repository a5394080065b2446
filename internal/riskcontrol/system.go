package riskcontrol

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config enables and tunes the risk-control subsystems independently.
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	ProxyPool struct {
		Enabled             bool          `json:"enabled" yaml:"enabled"`
		Strategy            ProxyStrategy `json:"strategy" yaml:"strategy"`
		Proxies             []ProxyConfig `json:"proxies" yaml:"proxies"`
		AutoHealthCheck     bool          `json:"auto_health_check" yaml:"auto_health_check"`
		HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	} `json:"proxy_pool" yaml:"proxy_pool"`

	RateLimit struct {
		Enabled bool            `json:"enabled" yaml:"enabled"`
		Global  RateLimitConfig `json:"global" yaml:"global"`
		Account RateLimitConfig `json:"account" yaml:"account"`
		User    RateLimitConfig `json:"user" yaml:"user"`
	} `json:"rate_limit" yaml:"rate_limit"`

	Fingerprint struct {
		Enabled bool `json:"enabled" yaml:"enabled"`
	} `json:"fingerprint" yaml:"fingerprint"`

	HealthMonitor struct {
		Enabled       bool          `json:"enabled" yaml:"enabled"`
		AutoRecovery  bool          `json:"auto_recovery" yaml:"auto_recovery"`
		CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`
	} `json:"health_monitor" yaml:"health_monitor"`
}

// System owns the risk-control components and their background loops.
// Components left nil are disabled; callers must nil-check before use.
type System struct {
	Proxies      *ProxyPool
	Limiter      *MultiLevelRateLimiter
	Fingerprints *FingerprintPool
	Health       *HealthMonitor

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSystem builds the enabled components from config. Background loops do
// not run until Start.
func NewSystem(cfg Config) *System {
	s := &System{}
	if !cfg.Enabled {
		log.Info("risk control disabled")
		return s
	}

	if cfg.ProxyPool.Enabled {
		s.Proxies = NewProxyPool(cfg.ProxyPool.Strategy)
		s.Proxies.AddBatch(cfg.ProxyPool.Proxies)
	}
	if cfg.RateLimit.Enabled {
		s.Limiter = NewMultiLevelRateLimiter(cfg.RateLimit.Global, cfg.RateLimit.Account, cfg.RateLimit.User)
	}
	if cfg.Fingerprint.Enabled {
		s.Fingerprints = NewFingerprintPool()
	}
	if cfg.HealthMonitor.Enabled {
		s.Health = NewHealthMonitor()
	}
	log.Info("risk control system initialized")
	return s
}

// Start launches the proxy probe and health recovery loops.
func (s *System) Start(ctx context.Context, cfg Config) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.Proxies != nil && cfg.ProxyPool.AutoHealthCheck {
		interval := cfg.ProxyPool.HealthCheckInterval
		if interval <= 0 {
			interval = DefaultProxyProbePeriod
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Proxies.CheckAll(ctx)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.Proxies.CheckAll(ctx)
				}
			}
		}()
	}

	if s.Health != nil && cfg.HealthMonitor.AutoRecovery {
		interval := cfg.HealthMonitor.CheckInterval
		if interval <= 0 {
			interval = time.Minute
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.Health.CheckAndRecover()
				}
			}
		}()
	}
}

// Stop cancels the background loops and waits for them to exit.
func (s *System) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Status reports component state for the admin API.
func (s *System) Status() map[string]interface{} {
	components := map[string]interface{}{}
	if s.Proxies != nil {
		components["proxy_pool"] = s.Proxies.Stats()
	}
	if s.Limiter != nil {
		components["rate_limiter"] = map[string]interface{}{"enabled": true}
	}
	if s.Fingerprints != nil {
		components["fingerprint"] = map[string]interface{}{"enabled": true}
	}
	if s.Health != nil {
		components["health_monitor"] = s.Health.Summary()
	}
	return map[string]interface{}{
		"initialized": len(components) > 0,
		"components":  components,
	}
}
