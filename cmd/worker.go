package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/backoffice/services/salesflow/config"
	"example.com/backoffice/services/salesflow/internal/database"
	"example.com/backoffice/services/salesflow/internal/metrics"
	"example.com/backoffice/services/salesflow/internal/numbering"
	"example.com/backoffice/services/salesflow/internal/search"
	"example.com/backoffice/services/salesflow/internal/tracing"
	"example.com/backoffice/services/salesflow/internal/workflow"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that indexes submitted documents missed by the immediate path`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connections
	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
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

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// The worker only runs the reconcile sweep; it opens no sessions,
	// publishes no events and needs no reference data.
	workflowService := workflow.NewService(db, readOnlyDB, numbering.NewGenerator(), nil, nil, elasticClient, metricsCollector, tracer)

	// Start the search index reconciliation cron job
	g.Go(func() error {
		log.Info().Msg("Starting search index reconciliation cron job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Workflow.ReconcileInterval),
			gocron.NewTask(func() {
				log.Info().Msg("Running reconciliation job to index any missed documents")
				if err := workflowService.ReconcileSearchIndex(ctx, cfg.Workflow.ReconcileBatch); err != nil {
					log.Error().Err(err).Msg("Failed to reconcile search index")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
