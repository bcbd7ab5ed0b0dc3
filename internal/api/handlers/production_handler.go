package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/cart"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/services"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/tracing"
)

// ProductionHandler handles the dashboard and commit HTTP requests
type ProductionHandler struct {
	aggregator  *services.DemandAggregator
	ledger      *services.DeliveryLedger
	cartService *services.CartService
	committer   *services.DeliveryCommitter
	tracer      tracing.Tracer
}

// NewProductionHandler creates a new production handler
func NewProductionHandler(
	aggregator *services.DemandAggregator,
	ledger *services.DeliveryLedger,
	cartService *services.CartService,
	committer *services.DeliveryCommitter,
	tracer tracing.Tracer,
) *ProductionHandler {
	return &ProductionHandler{
		aggregator:  aggregator,
		ledger:      ledger,
		cartService: cartService,
		committer:   committer,
		tracer:      tracer,
	}
}

// HandleGetDailySummary returns the day's requested/produced/remaining rows
func (h *ProductionHandler) HandleGetDailySummary(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-daily-summary")
	defer h.tracer.EndTransaction(txn)

	summary, err := h.aggregator.ComputeDailySummary(c.Request.Context(), time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute daily summary")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// HandleGetTodaysDeliveries returns today's deliveries, newest first, plus
// the per-store grouping
func (h *ProductionHandler) HandleGetTodaysDeliveries(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-todays-deliveries")
	defer h.tracer.EndTransaction(txn)

	deliveries, err := h.ledger.TodaysDeliveries(c.Request.Context(), time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch today's deliveries")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deliveries": deliveries,
		"by_store":   h.ledger.GroupByStore(deliveries),
	})
}

// CommitRequest is the body of a commit call. ConfirmMergeStores lists the
// stores the user has approved merging into an existing same-day delivery;
// a store with an existing delivery that is not listed comes back skipped.
type CommitRequest struct {
	ProductionDate     string      `json:"production_date"`
	Notes              string      `json:"notes"`
	CreatedBy          *uuid.UUID  `json:"created_by"`
	ConfirmMergeStores []uuid.UUID `json:"confirm_merge_stores"`
}

// HandleCommit commits the session's cart
func (h *ProductionHandler) HandleCommit(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-commit-deliveries")
	defer h.tracer.EndTransaction(txn)

	sessionID := c.GetHeader("X-Session-ID")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Session-ID header"})
		return
	}

	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid commit request body")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	productionDate := time.Now()
	if req.ProductionDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ProductionDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "production_date must be YYYY-MM-DD"})
			return
		}
		productionDate = parsed
	}

	approved := make(map[uuid.UUID]bool, len(req.ConfirmMergeStores))
	for _, storeID := range req.ConfirmMergeStores {
		approved[storeID] = true
	}
	approve := func(storeID uuid.UUID, storeName string) bool {
		return approved[storeID]
	}

	result, err := h.committer.Commit(
		c.Request.Context(),
		h.cartService.Cart(sessionID),
		productionDate,
		req.Notes,
		req.CreatedBy,
		approve,
	)
	if err != nil {
		if errors.Is(err, cart.ErrEmptyCart) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("Failed to commit deliveries")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// RegisterRoutes registers the handler's routes
func (h *ProductionHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/daily_summary", h.HandleGetDailySummary)
	router.GET("/deliveries/today", h.HandleGetTodaysDeliveries)
	router.POST("/deliveries/commit", h.HandleCommit)
}
