// Package api wires the gin engine: routes, middleware, and the handlers
// serving the OpenAI and Anthropic compatible surfaces.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/api/handlers"
	claudehandler "github.com/1-Tawsif-1/Antigravity-great-2/internal/api/handlers/claude"
	openaihandler "github.com/1-Tawsif-1/Antigravity-great-2/internal/api/handlers/openai"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/api/middleware"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/auth/antigravity"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/buildinfo"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/config"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/logging"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/runtime/executor"
)

// Server owns the configured gin engine.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
}

// NewServer assembles routes and middleware over the given pool and
// executor.
func NewServer(cfg *config.Config, pool *antigravity.PoolManager, exec *executor.Executor) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		logging.GinLogrusLogger(),
		logging.GinLogrusRecovery(),
		middleware.PrometheusMiddleware(),
	)
	middleware.SetMetricsEnabled(cfg.MetricsEnabled)

	base := handlers.NewBaseHandler(exec, pool)
	oai := openaihandler.NewHandler(base)
	claude := claudehandler.NewHandler(base)
	auth := middleware.APIKeyAuth(cfg.APIKeys)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"version":  buildinfo.Version,
			"eligible": pool.EligibleCount(),
		})
	})
	if cfg.MetricsEnabled {
		middleware.RegisterMetrics()
		engine.GET("/metrics", middleware.MetricsHandler())
	}

	v1 := engine.Group("/v1", auth)
	v1.POST("/chat/completions", oai.ChatCompletions)
	v1.GET("/models", oai.Models)
	v1.POST("/messages", claude.Messages)

	v0 := engine.Group("/v0", auth)
	v0.GET("/pool", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"eligible":    pool.EligibleCount(),
			"cursor":      pool.Cursor(),
			"credentials": pool.Stats(),
		})
	})

	return &Server{cfg: cfg, engine: engine}
}

// Handler exposes the engine for an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}
