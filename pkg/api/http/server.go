package http

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aescanero/quizsolver/internal/application/workers"
	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MaxBodyBytes is the largest request body accepted
const MaxBodyBytes = 1 << 20

// JobService is the orchestrator surface used by the handlers
type JobService interface {
	SubmitQuiz(ctx context.Context, req *domain.QuizRequest) (string, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*domain.Job, error)
	CancelJob(ctx context.Context, jobID string) error
}

// HealthReporter reports worker pool health
type HealthReporter interface {
	GetStatus() *workers.HealthStatus
}

// ReportGenerator renders a job report
type ReportGenerator interface {
	Generate(ctx context.Context, job *domain.Job, w io.Writer) error
}

// Server represents the HTTP API server
type Server struct {
	router  *gin.Engine
	server  *http.Server
	jobs    JobService
	health  HealthReporter
	reports ReportGenerator
	logger  *zap.Logger
	v1      *gin.RouterGroup
}

// Config holds HTTP server configuration
type Config struct {
	Port      int
	SecretKey string
	Jobs      JobService
	Health    HealthReporter
	Reports   ReportGenerator
	// Gatherer serves /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())
	router.Use(bodyLimit(MaxBodyBytes))

	s := &Server{
		router:  router,
		jobs:    cfg.Jobs,
		health:  cfg.Health,
		reports: cfg.Reports,
		logger:  cfg.Logger,
	}

	metricsHandler := promhttp.Handler()
	if cfg.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}

	s.setupRoutes(cfg.SecretKey, metricsHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(secret string, metrics http.Handler) {
	s.router.GET("/", s.handleIndex)
	s.router.POST("/quiz", s.handleSubmitQuiz)

	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(metrics))

	// API v1
	s.v1 = s.router.Group("/api/v1", AuthMiddleware(secret))
	{
		s.v1.GET("/jobs", s.handleListJobs)
		s.v1.GET("/jobs/:id", s.handleGetJob)
		s.v1.GET("/jobs/:id/status", s.handleGetStatus)
		s.v1.GET("/jobs/:id/attempts", s.handleGetAttempts)
		s.v1.GET("/jobs/:id/report", s.handleGetReport)
		s.v1.POST("/jobs/:id/cancel", s.handleCancelJob)
	}
}

// SetupWebSocket adds the job progress stream to the authenticated API
func (s *Server) SetupWebSocket(handler interface{ HandleJobStream(*gin.Context) }) {
	s.v1.GET("/jobs/:id/ws", handler.HandleJobStream)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
