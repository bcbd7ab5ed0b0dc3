package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/cart"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
)

// StoreGetter resolves stores from the catalog
type StoreGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

// ProductTypeGetter resolves product types from the catalog
type ProductTypeGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ProductType, error)
}

// CartService validates cart mutations against the catalogs and keeps one
// cart per interactive session. All mutations stay in memory; nothing is
// persisted until the committer runs.
type CartService struct {
	stores   StoreGetter
	products ProductTypeGetter
	sessions *cart.SessionStore
}

// NewCartService creates a new cart service
func NewCartService(stores StoreGetter, products ProductTypeGetter) *CartService {
	return &CartService{
		stores:   stores,
		products: products,
		sessions: cart.NewSessionStore(),
	}
}

// Cart returns the session's cart, creating it on first use
func (s *CartService) Cart(sessionID string) *cart.Cart {
	return s.sessions.Get(sessionID)
}

// AddItem stages an item after resolving the store and product references.
// An empty batch number defaults to the day's lot label.
func (s *CartService) AddItem(
	ctx context.Context,
	sessionID string,
	storeID, productTypeID uuid.UUID,
	quantity int,
	batchNumber string,
) (*cart.Item, error) {
	store, err := s.stores.GetByID(ctx, storeID)
	if err != nil {
		return nil, errors.Wrap(cart.ErrUnknownStore, err.Error())
	}

	product, err := s.products.GetByID(ctx, productTypeID)
	if err != nil {
		return nil, errors.Wrap(cart.ErrUnknownProduct, err.Error())
	}

	if batchNumber == "" {
		batchNumber = DefaultBatchNumber(time.Now())
	}

	return s.sessions.Get(sessionID).Add(store, product, quantity, batchNumber)
}

// RemoveItem takes an item out of the session's cart
func (s *CartService) RemoveItem(sessionID string, storeID, itemID uuid.UUID) error {
	return s.sessions.Get(sessionID).Remove(storeID, itemID)
}

// ClearCart empties the session's cart
func (s *CartService) ClearCart(sessionID string) {
	s.sessions.Get(sessionID).Clear()
}

// DefaultBatchNumber is the lot label suggested when the caller supplies
// none, e.g. LOTE-20240115.
func DefaultBatchNumber(t time.Time) string {
	return fmt.Sprintf("LOTE-%s", models.Day(t).Format("20060102"))
}
