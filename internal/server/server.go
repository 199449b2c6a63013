// Package server exposes the matching pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/logger"
	"github.com/spigell/repo-matcher/internal/matching"
)

const (
	DefaultAddr       = ":8080"
	DefaultUserHeader = "X-User-ID"
	shutdownTimeout   = 10 * time.Second
)

// Matcher is the pipeline behind the handlers.
type Matcher interface {
	Match(ctx context.Context, req matching.Request) (*matching.Result, error)
	Skills(ctx context.Context, userID string) (*matching.SkillsResult, error)
}

type Config struct {
	Addr       string `mapstructure:"addr"`
	UserHeader string `mapstructure:"user-header"`
	// Tracing wraps every request in an otelgin span.
	Tracing     bool   `mapstructure:"-"`
	ServiceName string `mapstructure:"-"`
}

type Server struct {
	matcher Matcher
	config  Config
	logger  *zap.Logger
	engine  *gin.Engine
}

func New(matcher Matcher, cfg Config, log *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.UserHeader == "" {
		cfg.UserHeader = DefaultUserHeader
	}

	s := &Server{
		matcher: matcher,
		config:  cfg,
		logger:  logger.WithFields(log),
	}
	s.engine = s.router()

	return s
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) router() *gin.Engine {
	router := gin.New()

	// Recovery runs inside the access log so recovered panics are logged
	// with their status.
	if s.config.Tracing {
		router.Use(otelgin.Middleware(s.config.ServiceName))
	}
	router.Use(accessLog(s.logger), recovery(s.logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1", requireUser(s.config.UserHeader))
	{
		v1.POST("/match", s.match)
		v1.GET("/skills", s.skills)
	}

	return router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", zap.String("addr", s.config.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
