package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlosccorreia5/gestao-saladas-sunset/config"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/cache"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/messaging"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/metrics"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/repositories"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/services"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to ingest store production requests from Azure Service Bus and keep the daily summary cache warm`,
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
	db, readOnlyDB, err := initDatabases(cfg)
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
		tracer = tracing.Disabled()
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize repositories
	productTypeRepo := repositories.NewProductTypeRepository(db, readOnlyDB)
	requestRepo := repositories.NewProductionRequestRepository(db, readOnlyDB)
	deliveryRepo := repositories.NewDeliveryRepository(db, readOnlyDB)

	// Initialize services
	aggregator := services.NewDemandAggregator(productTypeRepo, requestRepo, deliveryRepo, deliveryRepo,
		redisCache, metricsCollector, tracer)
	intake := services.NewRequestIntake(requestRepo, productTypeRepo, metricsCollector)

	// Initialize Azure Service Bus client
	azureBus, err := messaging.NewAzureServiceBus(cfg.Azure)
	if err != nil {
		return err
	}
	defer azureBus.Close()

	// Start the service bus processor
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting Azure Service Bus processor")
		return azureBus.ProcessMessages(ctx, intake.ProcessRequestMessage)
	})

	// Start the daily summary refresh cron job so the dashboard cache stays
	// warm even when nobody has opened it yet
	g.Go(func() error {
		log.Info().Msg("Starting daily summary refresh job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(5*time.Minute),
			gocron.NewTask(func() {
				if err := aggregator.RefreshSummary(ctx, time.Now()); err != nil {
					log.Error().Err(err).Msg("Failed to refresh daily summary")
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
