package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/carlosccorreia5/gestao-saladas-sunset/config"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/api/handlers"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/api/middleware"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/metrics"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/services"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config      config.Config
	router      *gin.Engine
	httpServer  *http.Server
	aggregator  *services.DemandAggregator
	ledger      *services.DeliveryLedger
	cartService *services.CartService
	committer   *services.DeliveryCommitter
	metrics     *metrics.Metrics
	tracer      tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	aggregator *services.DemandAggregator,
	ledger *services.DeliveryLedger,
	cartService *services.CartService,
	committer *services.DeliveryCommitter,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:      cfg,
		aggregator:  aggregator,
		ledger:      ledger,
		cartService: cartService,
		committer:   committer,
		metrics:     metricsCollector,
		tracer:      tracer,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: server.router,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	productionHandler := handlers.NewProductionHandler(s.aggregator, s.ledger, s.cartService, s.committer, s.tracer)
	productionHandler.RegisterRoutes(router)

	cartHandler := handlers.NewCartHandler(s.cartService)
	cartHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer)
	metricsHandler.RegisterRoutes(router)

	return router
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
