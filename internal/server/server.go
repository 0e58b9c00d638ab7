package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/twinly/internal/logger"
	"github.com/abhisek/twinly/internal/metrics"
)

// Config wires the router. Metrics and Health are optional.
type Config struct {
	Engine  Engine
	Health  Pinger
	Metrics *metrics.Metrics
	Log     *logger.Logger

	RatePerMinute int
	Burst         int
}

// NewRouter builds the HTTP API.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	h := &handlers{engine: cfg.Engine, health: cfg.Health}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Log))
	if cfg.Metrics != nil {
		router.Use(Instrument(cfg.Metrics))
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthz", h.healthz)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(RequireIdentity(), RateLimit(cfg.RatePerMinute, cfg.Burst))
	{
		api.POST("/init", h.initialize)
		api.GET("/learn", h.getQuestion)
		api.POST("/learn", h.submitAnswer)
		api.GET("/profile", h.profile)
		api.PUT("/guidance", h.setText(cfg.Engine.SetGuidance))
		api.PUT("/name", h.setText(cfg.Engine.SetName))
		api.PUT("/persona", h.setText(cfg.Engine.SetPersona))
		api.POST("/reset", h.reset)
		api.POST("/chat", h.chat)
	}

	return router
}

// Server runs the router until its context ends.
type Server struct {
	http            *http.Server
	shutdownTimeout time.Duration
	log             *logger.Logger
}

// New creates a Server listening on addr.
func New(addr string, handler http.Handler, shutdownTimeout time.Duration, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		log:             log,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.http.Addr)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
