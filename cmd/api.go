package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/backoffice/services/salesflow/config"
	"example.com/backoffice/services/salesflow/internal/api"
	"example.com/backoffice/services/salesflow/internal/cache"
	"example.com/backoffice/services/salesflow/internal/database"
	"example.com/backoffice/services/salesflow/internal/messaging"
	"example.com/backoffice/services/salesflow/internal/metrics"
	"example.com/backoffice/services/salesflow/internal/models"
	"example.com/backoffice/services/salesflow/internal/numbering"
	"example.com/backoffice/services/salesflow/internal/refdata"
	"example.com/backoffice/services/salesflow/internal/search"
	"example.com/backoffice/services/salesflow/internal/tracing"
	"example.com/backoffice/services/salesflow/internal/workflow"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server that drives sales document workflow sessions`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize database connections
	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	// Initialize the event publisher
	var publisher messaging.ServiceBusClient
	if cfg.Azure.QueueConnStr != "" {
		publisher, err = messaging.NewServiceBusClient(cfg.Azure, "salesflow-api")
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Service Bus publisher, continuing without events")
		}
	} else {
		log.Warn().Msg("Service Bus connection string not provided, submission events disabled")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize services
	generator := numbering.NewGenerator(numbering.WithPrefixes(map[models.Stage]string{
		models.StageQuotation:       cfg.Workflow.QuotationPrefix,
		models.StageSalesOrder:      cfg.Workflow.SalesOrderPrefix,
		models.StageDeliveryChallan: cfg.Workflow.ChallanPrefix,
		models.StageInvoice:         cfg.Workflow.InvoicePrefix,
		models.StagePayment:         cfg.Workflow.PaymentPrefix,
	}))
	refdataService := refdata.NewService(db, readOnlyDB, redisCache, cfg.Redis.TTL)
	workflowService := workflow.NewService(db, readOnlyDB, generator, refdataService, publisher, elasticClient, metricsCollector, tracer)

	// Prune idle workflow sessions on a schedule
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Workflow.SessionMaxIdle/2),
		gocron.NewTask(func() {
			workflowService.PruneExpired(cfg.Workflow.SessionMaxIdle)
		}),
	)
	if err != nil {
		return err
	}
	scheduler.Start()

	// Initialize and start the server
	server := api.NewServer(cfg, workflowService, refdataService, elasticClient, metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	if err := scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Scheduler shutdown error")
	}

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Service Bus shutdown error")
		}
	}
	if err := redisCache.Close(); err != nil {
		log.Error().Err(err).Msg("Redis shutdown error")
	}
	tracer.Close()

	log.Info().Msg("Shutting down API server")
	return nil
}
