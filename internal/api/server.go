package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lars-symptom-tracker/internal/assistant"
	"github.com/lars-symptom-tracker/internal/domain"
	"github.com/lars-symptom-tracker/internal/middleware"
	"github.com/lars-symptom-tracker/internal/service"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

const shutdownTimeout = 30 * time.Second

// Options wires the server to the core services
type Options struct {
	Config  *domain.Config
	Engine  *service.ScoreEngine
	Entries *service.EntryService
	// Assistant is optional; without it the assistant routes answer 503.
	Assistant assistant.Assistant
	// HealthChecks are run by GET /health, keyed by component name.
	HealthChecks map[string]domain.HealthChecker
	Logger       *logrus.Logger
	// AuditOutput receives one JSON line per request; defaults to stdout.
	AuditOutput io.Writer
}

// Server represents the HTTP server
type Server struct {
	config       *domain.Config
	engine       *service.ScoreEngine
	entries      *service.EntryService
	assistant    assistant.Assistant
	healthChecks map[string]domain.HealthChecker
	logger       *logrus.Logger
	router       *gin.Engine
	server       *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Engine == nil || opts.Entries == nil || opts.Logger == nil {
		return nil, fmt.Errorf("config, engine, entries and logger are required")
	}
	if opts.AuditOutput == nil {
		opts.AuditOutput = os.Stdout
	}

	cfg := opts.Config
	if strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(opts.AuditOutput))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	if cfg.RateLimit.Enabled {
		limiter, err := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		router.Use(limiter.Middleware())
	}

	s := &Server{
		config:       cfg,
		engine:       opts.Engine,
		entries:      opts.Entries,
		assistant:    opts.Assistant,
		healthChecks: opts.HealthChecks,
		logger:       opts.Logger,
		router:       router,
	}

	s.setupRoutes()

	return s, nil
}

// Handler returns the router for use with httptest or a custom listener
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RequestTimeout(s.config.Server.RequestTimeout))
	{
		v1.GET("/questionnaire", s.handleQuestionnaire)
		v1.POST("/score", s.handleScore)
	}

	authed := v1.Group("", middleware.RequireIdentity())
	{
		authed.POST("/entries", middleware.RequirePermission(domain.PERM_RECORD_ENTRIES), s.handleRecordEntry)
		authed.GET("/entries", middleware.RequirePermission(domain.PERM_VIEW_OWN_ENTRIES), s.handleListOwnEntries)
		authed.GET("/entries/trend", middleware.RequirePermission(domain.PERM_VIEW_OWN_ENTRIES), s.handleTrend)
		authed.GET("/entries/export", middleware.RequirePermission(domain.PERM_EXPORT_DATA), s.handleExport)
		authed.GET("/users/:user_id/entries", middleware.RequirePermission(domain.PERM_VIEW_PATIENT_ENTRIES), s.handleListPatientEntries)
		authed.GET("/aggregate/severity", middleware.RequirePermission(domain.PERM_VIEW_AGGREGATE_DATA), s.handleSeverityDistribution)
		authed.POST("/assistant", middleware.RequirePermission(domain.PERM_USE_ASSISTANT), s.handleAssistant)
	}

	// websocket connections outlive the request timeout
	ws := s.router.Group("/api/v1", middleware.RequireIdentity(), middleware.RequirePermission(domain.PERM_USE_ASSISTANT))
	ws.GET("/assistant/ws", s.handleAssistantWS)
}

// corsMiddleware allows browser clients from the configured origins; "*" allows any origin.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.HeaderUserID, middleware.HeaderUserRole, "X-Correlation-ID"},
		ExposeHeaders: []string{"X-Correlation-ID", "Retry-After", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}
