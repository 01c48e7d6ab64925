// Package api serves the raw employees and tasks tables over HTTP.
//
// The endpoints are not scoped to a principal and return rows exactly as
// stored, extended_data included.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tgienger/taskdesk/internal/models"
)

// Source lists every row in the store; *db.DB and *postgres.Store implement it
type Source interface {
	AllEmployees(ctx context.Context) ([]models.Employee, error)
	AllTasks(ctx context.Context) ([]models.TaskRecord, error)
}

// Server is the HTTP API server
type Server struct {
	source Source
	router *gin.Engine
	log    *slog.Logger
}

// NewServer creates a server over source
func NewServer(source Source, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		source: source,
		router: router,
		log:    log,
	}
	router.Use(s.logRequests)

	api := router.Group("/api")
	{
		api.GET("/employees", s.handleEmployees)
		api.GET("/tasks", s.handleTasks)
	}

	return s
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleEmployees(c *gin.Context) {
	employees, err := s.source.AllEmployees(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, employees)
}

func (s *Server) handleTasks(c *gin.Context) {
	tasks, err := s.source.AllTasks(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// internalError logs err and hides it from the client
func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}
