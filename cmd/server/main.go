package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/compressor"
	"aigateway-go/internal/config"
	"aigateway-go/internal/distributor"
	"aigateway-go/internal/events"
	"aigateway-go/internal/logging"
	"aigateway-go/internal/models"
	"aigateway-go/internal/monitoring"
	"aigateway-go/internal/monitoring/tracing"
	"aigateway-go/internal/relay"
	"aigateway-go/internal/riskcontrol"
	"aigateway-go/internal/server"
	"aigateway-go/internal/storage"
	"aigateway-go/internal/translator"
	"aigateway-go/internal/upstream"
	"aigateway-go/internal/usage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := logging.Setup(logging.Options{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
		JSON:  cfg.Logging.JSON,
	}); err != nil {
		log.WithError(err).Fatal("setup logging")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var traceShutdown func(context.Context) error
	if cfg.Tracing.Enabled {
		traceShutdown, err = tracing.Init(ctx, cfg.Tracing.Endpoint)
		if err != nil {
			log.WithError(err).Warn("tracing init failed, continuing without traces")
		}
	}

	store, err := storage.New(storage.Config{
		Backend:     cfg.Storage.Backend,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		log.WithError(err).Fatal("open storage")
	}
	defer store.Close()
	if err := store.Initialize(ctx); err != nil {
		log.WithError(err).Fatal("initialize storage")
	}
	if err := ensureAdminUser(ctx, store, cfg); err != nil {
		log.WithError(err).Fatal("seed admin user")
	}

	risk := buildRiskControl(ctx, store, cfg)
	defer risk.Stop()

	providers, glmProvider := buildProviders(store, cfg)

	comp := buildCompressor(ctx, store, cfg, glmProvider)

	dist := distributor.New(store, distributor.NewBalancer(
		distributor.Strategy(cfg.Balancer), channelPenalty))

	tracker := usage.NewTracker()
	hub := events.NewHub()

	rly := relay.New(relay.Services{
		Store:       store,
		Providers:   providers,
		Distributor: dist,
		Risk:        risk,
		Compressor:  comp,
		Tracker:     tracker,
		Translators: translator.Default(),
		Hub:         hub,
	})

	srv := server.New(server.Options{
		Config:  cfg,
		Store:   store,
		Relay:   rly,
		Risk:    risk,
		Tracker: tracker,
		Hub:     hub,
	})

	jobs := startJobs(ctx, store, cfg, risk)
	defer jobs.Stop()

	go watchConfig(ctx, *configPath)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("server stopped")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
	if traceShutdown != nil {
		if err := traceShutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("trace flush incomplete")
		}
	}
}

// ensureAdminUser creates the bootstrap admin from config when no user with
// that email exists yet.
func ensureAdminUser(ctx context.Context, store storage.Backend, cfg *config.Config) error {
	if !cfg.Management.Enabled || cfg.Management.AdminEmail == "" || cfg.Management.AdminPassword == "" {
		return nil
	}
	if _, err := store.GetUserByEmail(ctx, cfg.Management.AdminEmail); err == nil {
		return nil
	} else if !storage.IsNotFound(err) {
		return err
	}

	hash, err := models.HashPassword(cfg.Management.AdminPassword)
	if err != nil {
		return err
	}
	admin := &models.User{
		Email:        cfg.Management.AdminEmail,
		PasswordHash: hash,
		Name:         "admin",
		Role:         models.RoleSuperAdmin,
		Quota:        models.UnlimitedQuota,
		Enabled:      true,
	}
	if err := store.CreateUser(ctx, admin); err != nil {
		return err
	}
	log.WithField("email", admin.Email).Info("bootstrap admin created")
	return nil
}

// buildRiskControl overlays the persisted switchboard row onto the static
// config, then builds and starts the system.
func buildRiskControl(ctx context.Context, store storage.Backend, cfg *config.Config) *riskcontrol.System {
	rc := cfg.RiskControl

	settings, err := store.RiskControlSettings(ctx)
	if err != nil {
		log.WithError(err).Warn("risk control settings unavailable, using config defaults")
		settings = models.DefaultRiskControlSettings()
	}
	if settings.ProxyPoolEnabled {
		rc.ProxyPool.Enabled = true
		rc.ProxyPool.Strategy = riskcontrol.ProxyStrategy(settings.ProxyPoolStrategy)
	}
	if settings.RateLimitEnabled {
		rc.RateLimit.Enabled = true
		if settings.RateLimitGlobalRPM > 0 {
			rc.RateLimit.Global.RequestsPerMinute = settings.RateLimitGlobalRPM
		}
		if settings.RateLimitGlobalTPM > 0 {
			rc.RateLimit.Global.TokensPerMinute = settings.RateLimitGlobalTPM
		}
	}
	if settings.HealthMonitorEnabled {
		rc.HealthMonitor.Enabled = true
		rc.HealthMonitor.AutoRecovery = true
		if settings.HealthMonitorInterval > 0 {
			rc.HealthMonitor.CheckInterval = time.Duration(settings.HealthMonitorInterval) * time.Second
		}
	}
	if settings.FingerprintEnabled {
		rc.Fingerprint.Enabled = true
	}
	rc.Enabled = rc.Enabled || rc.ProxyPool.Enabled || rc.RateLimit.Enabled ||
		rc.HealthMonitor.Enabled || rc.Fingerprint.Enabled

	system := riskcontrol.NewSystem(rc)
	system.Start(ctx, rc)
	return system
}

// buildProviders constructs one adapter per provider type. The GLM provider
// doubles as the compressor's summarizer backend.
func buildProviders(store storage.Backend, cfg *config.Config) (*upstream.Registry, upstream.Provider) {
	// Streams must outlive any fixed client timeout; the relay bounds each
	// attempt with its own context.
	client := upstream.NewHTTPClient(nil, 0)

	persist := func(ctx context.Context, accountID int64, credentialsJSON string) error {
		account, err := store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		account.APIKey = credentialsJSON
		return store.UpdateAccount(ctx, account)
	}
	credit := func(ctx context.Context, accountID int64, delta float64) {
		if err := store.RecordAccountUsage(ctx, accountID, int64(delta), 0, 0); err != nil {
			log.WithError(err).WithField("account_id", accountID).Warn("credit update failed")
		}
	}

	glm := upstream.NewGLM(cfg.Providers.GLM.BaseURL, client)
	registry := upstream.NewRegistry(
		upstream.NewOpenAI(cfg.Providers.OpenAI.BaseURL, client),
		upstream.NewClaude(cfg.Providers.Claude.BaseURL, client),
		upstream.NewGemini(cfg.Providers.Gemini.BaseURL, client),
		glm,
		upstream.NewKiro(client, persist, credit),
	)
	return registry, glm
}

// buildCompressor seeds the compressor from the persisted cache settings.
// The relay re-reads the row per request, so this only sets the start state.
func buildCompressor(ctx context.Context, store storage.Backend, cfg *config.Config, glm upstream.Provider) *compressor.Compressor {
	settings, err := store.CacheSettings(ctx)
	if err != nil {
		settings = models.DefaultCacheSettings()
	}

	var summarizer compressor.Summarizer
	if cfg.Summarizer.APIKey != "" {
		summarizer = upstream.NewGLMSummarizer(glm, cfg.Summarizer.APIKey)
	}
	return compressor.New(compressor.Config{
		Enabled:   settings.CompressionEnabled,
		Threshold: settings.CompressionThreshold,
		Target:    settings.CompressionTarget,
		Strategy:  compressor.Strategy(settings.CompressionStrategy),
	}, summarizer)
}

// channelPenalty scales a channel's score by its rolling success rate. The
// floor keeps a failing channel reachable so it can prove recovery.
func channelPenalty(channel *models.Channel) float64 {
	if r := channel.SuccessRate(); r > 0.05 {
		return r
	}
	return 0.05
}

// startJobs schedules the storage sweeps and the availability gauge.
func startJobs(ctx context.Context, store storage.Backend, cfg *config.Config, risk *riskcontrol.System) *cron.Cron {
	c := cron.New()

	tokenSweep := cfg.Jobs.TokenSweepMinutes
	if tokenSweep <= 0 {
		tokenSweep = 5
	}
	c.Schedule(cron.Every(time.Duration(tokenSweep)*time.Minute), cron.FuncJob(func() {
		if n, err := store.SweepTokenStatus(ctx, time.Now()); err != nil {
			log.WithError(err).Warn("token sweep failed")
		} else if n > 0 {
			log.WithField("tokens", n).Info("token statuses swept")
		}
	}))

	sessionSweep := cfg.Jobs.SessionSweepHours
	if sessionSweep <= 0 {
		sessionSweep = 1
	}
	c.Schedule(cron.Every(time.Duration(sessionSweep)*time.Hour), cron.FuncJob(func() {
		if n, err := store.PurgeExpiredSessions(ctx, time.Now()); err != nil {
			log.WithError(err).Warn("session purge failed")
		} else if n > 0 {
			log.WithField("sessions", n).Info("expired sessions purged")
		}
	}))

	if cfg.Jobs.LogRetentionDays > 0 {
		retention := time.Duration(cfg.Jobs.LogRetentionDays) * 24 * time.Hour
		c.Schedule(cron.Every(24*time.Hour), cron.FuncJob(func() {
			if n, err := store.TrimRequestLogs(ctx, time.Now().Add(-retention)); err != nil {
				log.WithError(err).Warn("log trim failed")
			} else if n > 0 {
				log.WithField("rows", n).Info("request logs trimmed")
			}
		}))
	}

	c.Schedule(cron.Every(time.Minute), cron.FuncJob(func() {
		refreshAvailabilityGauge(ctx, store, risk)
	}))

	c.Start()
	return c
}

// refreshAvailabilityGauge counts the accounts per provider the health
// monitor still allows.
func refreshAvailabilityGauge(ctx context.Context, store storage.Backend, risk *riskcontrol.System) {
	for _, providerType := range []string{"openai", "claude", "gemini", "glm", "kiro"} {
		accounts, err := store.EnabledAccounts(ctx, providerType)
		if err != nil {
			continue
		}
		available := 0
		for _, a := range accounts {
			if !a.HasCredit() {
				continue
			}
			if risk != nil && risk.Health != nil && !risk.Health.Available(a.ID) {
				continue
			}
			available++
		}
		monitoring.AccountsAvailable.WithLabelValues(providerType).Set(float64(available))
	}
}

// watchConfig applies log-level changes live; everything else needs a
// restart and is only logged.
func watchConfig(ctx context.Context, path string) {
	err := config.Watch(ctx, path, func(updated *config.Config) {
		if err := logging.Setup(logging.Options{
			Level: updated.Logging.Level,
			File:  updated.Logging.File,
			JSON:  updated.Logging.JSON,
		}); err != nil {
			log.WithError(err).Warn("config reload: logging unchanged")
			return
		}
		log.Info("config reloaded; non-logging changes apply on restart")
	})
	if err != nil {
		log.WithError(err).Warn("config watcher unavailable")
	}
}
