package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlosccorreia5/gestao-saladas-sunset/config"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/api"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/cache"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/metrics"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/repositories"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/search"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/services"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for the production dashboard, delivery cart and delivery commits`,
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

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize repositories
	productTypeRepo := repositories.NewProductTypeRepository(db, readOnlyDB)
	storeRepo := repositories.NewStoreRepository(db, readOnlyDB)
	requestRepo := repositories.NewProductionRequestRepository(db, readOnlyDB)
	deliveryRepo := repositories.NewDeliveryRepository(db, readOnlyDB)

	// Initialize services
	sequencer := services.NewDeliverySequencer(deliveryRepo, cfg.DeliveryPrefix)
	aggregator := services.NewDemandAggregator(productTypeRepo, requestRepo, deliveryRepo, deliveryRepo,
		redisCache, metricsCollector, tracer)
	ledger := services.NewDeliveryLedger(deliveryRepo)
	cartService := services.NewCartService(storeRepo, productTypeRepo)

	var indexer services.DeliveryIndexer
	if elasticClient != nil {
		indexer = elasticClient
	}
	committer := services.NewDeliveryCommitter(deliveryRepo, sequencer, aggregator, indexer,
		metricsCollector, tracer)

	// Initialize and start the server
	server := api.NewServer(cfg, aggregator, ledger, cartService, committer, metricsCollector, tracer)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	// Initialize write database
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	// Initialize read-only database
	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	// Configure connection pools for both databases
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}

	// Higher limits for the read side, the dashboard polls it
	readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns * 2)
	readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns * 2)
	readSqlDB.SetConnMaxLifetime(time.Hour)

	return db, readOnlyDB, nil
}
