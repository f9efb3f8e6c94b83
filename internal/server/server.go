// Package server exposes the proposal AI endpoints over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lightnote/admission"
	"github.com/lightnote/admission/internal/ai"
	"github.com/lightnote/admission/internal/config"
)

// Deps are the collaborators handed to the HTTP layer. Limiter and
// Generator are required.
type Deps struct {
	Limiter   *admission.Limiter
	Generator ai.Generator
	Publisher admission.EventPublisher
	Strikes   StrikeReader
	Logger    *zap.Logger
}

type Server struct {
	engine *gin.Engine
	server *http.Server
	logger *zap.Logger
}

func New(cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(requestID(), accessLog(logger), recovery(logger))

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Error: "not found"})
	})

	h := &handlers{
		limiter:   deps.Limiter,
		generator: deps.Generator,
		strikes:   deps.Strikes,
		logger:    logger,
	}
	mw := admission.MiddlewareConfig{
		EventPublisher: deps.Publisher,
		Logger:         logger,
	}

	engine.GET("/health", h.health)

	api := engine.Group("/api")
	api.POST("/analyze", admission.AdmissionMiddleware(deps.Limiter, admission.ActionAnalyze, mw), h.analyze)
	api.POST("/rewrite", admission.AdmissionMiddleware(deps.Limiter, admission.ActionRewrite, mw), h.rewrite)
	api.GET("/admission/status", h.status)

	return &Server{
		engine: engine,
		logger: logger,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	s.logger.Info("shutting down HTTP server")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
