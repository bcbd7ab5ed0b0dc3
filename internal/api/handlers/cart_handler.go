package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/cart"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/services"
)

// CartHandler handles cart mutations for one interactive session, keyed by
// the X-Session-ID header
type CartHandler struct {
	cartService *services.CartService
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService *services.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// AddItemRequest stages one line for a store
type AddItemRequest struct {
	StoreID       uuid.UUID `json:"store_id" binding:"required"`
	ProductTypeID uuid.UUID `json:"salad_type_id" binding:"required"`
	Quantity      int       `json:"quantity" binding:"required"`
	BatchNumber   string    `json:"batch_number"`
}

// HandleAddItem adds an item to the session's cart
func (h *CartHandler) HandleAddItem(c *gin.Context) {
	sessionID, ok := sessionID(c)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.cartService.AddItem(c.Request.Context(), sessionID, req.StoreID, req.ProductTypeID, req.Quantity, req.BatchNumber)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected cart item")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"item": item,
		"cart": h.cartService.Cart(sessionID).Bags(),
	})
}

// HandleRemoveItem removes one item from a store's bag
func (h *CartHandler) HandleRemoveItem(c *gin.Context) {
	sessionID, ok := sessionID(c)
	if !ok {
		return
	}

	storeID, err := uuid.Parse(c.Param("storeID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid store id"})
		return
	}
	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	if err := h.cartService.RemoveItem(sessionID, storeID, itemID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, cart.ErrItemNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": h.cartService.Cart(sessionID).Bags()})
}

// HandleGetCart returns the session's staged bags
func (h *CartHandler) HandleGetCart(c *gin.Context) {
	sessionID, ok := sessionID(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": h.cartService.Cart(sessionID).Bags()})
}

// HandleClearCart empties the session's cart
func (h *CartHandler) HandleClearCart(c *gin.Context) {
	sessionID, ok := sessionID(c)
	if !ok {
		return
	}

	h.cartService.ClearCart(sessionID)
	c.JSON(http.StatusOK, gin.H{"cart": []interface{}{}})
}

func sessionID(c *gin.Context) (string, bool) {
	id := c.GetHeader("X-Session-ID")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Session-ID header"})
		return "", false
	}
	return id, true
}

// RegisterRoutes registers the handler's routes
func (h *CartHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/cart", h.HandleGetCart)
	router.POST("/cart/items", h.HandleAddItem)
	router.DELETE("/cart", h.HandleClearCart)
	router.DELETE("/cart/stores/:storeID/items/:itemID", h.HandleRemoveItem)
}
