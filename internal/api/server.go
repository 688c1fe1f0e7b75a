package api

import (
	"context"
	"net/http"
	"time"

	"example.com/backoffice/services/salesflow/config"
	"example.com/backoffice/services/salesflow/internal/api/handlers"
	"example.com/backoffice/services/salesflow/internal/metrics"
	"example.com/backoffice/services/salesflow/internal/refdata"
	"example.com/backoffice/services/salesflow/internal/search"
	"example.com/backoffice/services/salesflow/internal/tracing"
	"example.com/backoffice/services/salesflow/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server represents the HTTP server
type Server struct {
	config          config.Config
	router          *gin.Engine
	httpServer      *http.Server
	workflowService *workflow.Service
	refdataService  *refdata.Service
	elasticClient   *search.ElasticClient
	metrics         *metrics.Metrics
	tracer          tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	workflowService *workflow.Service,
	refdataService *refdata.Service,
	elasticClient *search.ElasticClient,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:          cfg,
		workflowService: workflowService,
		refdataService:  refdataService,
		elasticClient:   elasticClient,
		metrics:         metricsCollector,
		tracer:          tracer,
	}

	router := server.setupRouter()
	server.router = router

	httpServer := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}
	server.httpServer = httpServer

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	if app := s.tracer.Application(); app != nil {
		router.Use(nrgin.Middleware(app))
	}

	// Register handlers
	workflowHandler := handlers.NewWorkflowHandler(s.workflowService, s.tracer)
	workflowHandler.RegisterRoutes(router)

	refdataHandler := handlers.NewRefdataHandler(s.refdataService, s.tracer)
	refdataHandler.RegisterRoutes(router)

	searchHandler := handlers.NewSearchHandler(s.elasticClient, s.tracer)
	searchHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer)
	metricsHandler.RegisterRoutes(router)

	return router
}

// requestLogger logs each request with zerolog
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
