// Package api exposes the digest pipeline as a small JSON HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"news_digest/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

// Server serves the HTTP API.
type Server struct {
	pipe   *pipeline.Pipeline
	log    *slog.Logger
	router *gin.Engine
}

// New creates a Server with all routes registered.
func New(pipe *pipeline.Pipeline, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{pipe: pipe, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.GET("/users/:user/brief", s.getBrief)
		api.POST("/users/:user/refresh", s.refresh)
		api.GET("/users/:user/digests", s.listDigests)
		api.GET("/users/:user/preferences", s.getPreferences)
		api.PUT("/users/:user/preferences", s.putPreferences)
		api.POST("/users/:user/items/:item/state", s.setItemState)
		api.GET("/items/:item/summary", s.getSummary)
		api.DELETE("/items/:item/summary", s.deleteSummary)
	}

	s.router = r
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
