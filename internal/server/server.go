package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/config"
	"aigateway-go/internal/events"
	"aigateway-go/internal/handlers"
	"aigateway-go/internal/middleware"
	"aigateway-go/internal/relay"
	"aigateway-go/internal/riskcontrol"
	"aigateway-go/internal/storage"
	"aigateway-go/internal/usage"
)

// Options carries everything the HTTP layer needs.
type Options struct {
	Config  *config.Config
	Store   storage.Backend
	Relay   *relay.Relay
	Risk    *riskcontrol.System
	Tracker *usage.Tracker
	Hub     *events.Hub
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	engine *gin.Engine
	http   *http.Server
}

// New wires the middleware stack and all routes.
func New(opts Options) *Server {
	cfg := opts.Config
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.CORS(),
		middleware.AccessLog(),
		middleware.Metrics(),
	)

	registerRoutes(engine, opts)

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			// No write timeout: relayed streams stay open for minutes.
		},
	}
}

func registerRoutes(engine *gin.Engine, opts Options) {
	api := handlers.NewAPI(opts.Relay, opts.Store)
	tokenAuth := middleware.TokenAuth(opts.Store)
	rateLimit := middleware.NewTokenRateLimit().Handler()

	engine.GET("/healthz", func(c *gin.Context) {
		if err := opts.Store.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1", tokenAuth, rateLimit)
	{
		v1.POST("/chat/completions", api.Chat)
		v1.POST("/responses", api.Chat)
		v1.POST("/messages", api.Chat)
		v1.GET("/models", api.ListModels)
		v1.GET("/models/:model", api.GetModel)
	}

	v1beta := engine.Group("/v1beta", tokenAuth, rateLimit)
	{
		v1beta.GET("/models", api.ListModelsGemini)
		// Catches /v1beta/models/{model}:generateContent and the streaming
		// variant; the distributor parses model and action out of the path.
		v1beta.POST("/models/*action", api.Chat)
	}

	if opts.Config.Management.Enabled {
		admin := handlers.NewAdmin(opts.Store, opts.Risk, opts.Tracker, opts.Hub,
			opts.Config.Management.SessionTTL)
		registerAdminRoutes(engine, opts.Store, admin)
	}
}

func registerAdminRoutes(engine *gin.Engine, store storage.Backend, admin *handlers.Admin) {
	engine.POST("/admin/login", admin.Login)

	g := engine.Group("/admin", middleware.SessionAuth(store))
	{
		g.POST("/logout", admin.Logout)
		g.GET("/me", admin.Me)

		g.GET("/accounts", admin.ListAccounts)
		g.POST("/accounts", admin.CreateAccount)
		g.PUT("/accounts/:id", admin.UpdateAccount)
		g.DELETE("/accounts/:id", admin.DeleteAccount)

		g.GET("/channels", admin.ListChannels)
		g.POST("/channels", admin.CreateChannel)
		g.PUT("/channels/:id", admin.UpdateChannel)
		g.DELETE("/channels/:id", admin.DeleteChannel)

		g.GET("/users", admin.ListUsers)
		g.POST("/users", admin.CreateUser)
		g.PUT("/users/:id", admin.UpdateUser)
		g.DELETE("/users/:id", admin.DeleteUser)

		g.GET("/tokens", admin.ListTokens)
		g.POST("/tokens", admin.CreateToken)
		g.PUT("/tokens/:id", admin.UpdateToken)
		g.DELETE("/tokens/:id", admin.DeleteToken)

		g.GET("/risk-control/status", admin.RiskControlStatus)
		g.GET("/settings/risk-control", admin.GetRiskControlSettings)
		g.PUT("/settings/risk-control", admin.UpdateRiskControlSettings)
		g.GET("/settings/cache", admin.GetCacheSettings)
		g.PUT("/settings/cache", admin.UpdateCacheSettings)

		g.GET("/stats", admin.Stats)
		g.GET("/logs", admin.ListRequestLogs)
		g.GET("/ws", admin.EventFeed)
	}
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.WithField("addr", s.http.Addr).Info("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
