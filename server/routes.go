// Package server - Haupt-Router und Server-Setup fuer den DDPM-Sampler
// Beinhaltet: Server-Struct, Konfiguration, Router-Registrierung
package server

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/envconfig"
	"github.com/ollama/ddpm/ml"
	"github.com/ollama/ddpm/model"
	"github.com/ollama/ddpm/sampler"
	"github.com/ollama/ddpm/store"
	"github.com/ollama/ddpm/version"
)

var mode string = gin.DebugMode

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// Config enthaelt alle Kollaborateure des Servers
type Config struct {
	Backend   ml.Backend
	Schedule  *diffusion.NoiseSchedule
	Model     model.Model
	ModelName string

	// Rand is shared by all steps; the step semaphore serializes access.
	Rand *rand.Rand

	MaxSessions int
	SessionTTL  time.Duration

	// History is optional.
	History *store.Store
}

// Server verwaltet den HTTP-Router, die Sitzungen und die Schritt-Sperre
type Server struct {
	addr net.Addr
	cfg  Config

	driver *sampler.Driver

	// steps serializes every reverse step across all handlers
	steps *semaphore.Weighted
}

// New erstellt einen Server. Der Aufrufer besitzt cfg.Backend,
// cfg.Model und cfg.History und schliesst sie nach Close.
func New(cfg Config) (*Server, error) {
	s := &Server{cfg: cfg, steps: semaphore.NewWeighted(1)}

	driver, err := sampler.NewDriver(s.samplerConfig(cfg.Rand), sampler.DriverOptions{
		MaxSessions: cfg.MaxSessions,
		TTL:         cfg.SessionTTL,
		OnComplete:  s.recordSession,
	})
	if err != nil {
		return nil, err
	}
	s.driver = driver

	return s, nil
}

func (s *Server) samplerConfig(rng *rand.Rand) sampler.Config {
	return sampler.Config{
		Backend:  s.cfg.Backend,
		Schedule: s.cfg.Schedule,
		Model:    s.cfg.Model,
		Rand:     rng,
	}
}

// Close gibt alle Sitzungen frei
func (s *Server) Close() {
	s.driver.Close()
}

// acquire wartet auf die Schritt-Sperre
func (s *Server) acquire(ctx context.Context) (func(), error) {
	if err := s.steps.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.steps.Release(1) }, nil
}

// expireSessions laeuft bis ctx endet und verwirft abgelaufene Sitzungen
func (s *Server) expireSessions(ctx context.Context) {
	if s.cfg.SessionTTL <= 0 {
		return
	}

	interval := max(s.cfg.SessionTTL/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if expired := s.driver.Expire(now); len(expired) > 0 {
				slog.Debug("expired sessions", "keys", expired)
			}
		}
	}
}

// statusFor bildet Fehler auf HTTP-Statuscodes ab
func statusFor(err error) int {
	switch {
	case errors.Is(err, sampler.ErrUnknownSession), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, diffusion.ErrInvalidArgument), errors.Is(err, model.ErrInvalidShape):
		return http.StatusBadRequest
	case errors.Is(err, ml.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		requestLogger(),
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "ddpm is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ddpm is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Resumable sessions
	r.POST("/api/start", s.StartHandler)
	r.POST("/api/next", s.NextHandler)
	r.POST("/api/message", s.MessageHandler)
	r.GET("/api/sessions", s.SessionsHandler)
	r.DELETE("/api/sessions/:key", s.CancelHandler)

	// Run to completion
	r.POST("/api/sample", s.SampleHandler)

	// Inspection
	r.GET("/api/schedule", s.ScheduleHandler)
	r.GET("/api/history", s.HistoryHandler)
	r.GET("/api/history/:key/image", s.HistoryImageHandler)

	return r
}
