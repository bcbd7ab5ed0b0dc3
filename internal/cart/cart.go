package cart

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
)

// Validation errors surfaced before any persistence call is made.
var (
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrUnknownStore    = errors.New("store does not resolve in the catalog")
	ErrUnknownProduct  = errors.New("product type does not resolve in the catalog")
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrEmptyCart       = errors.New("cart has no items to commit")
)

// Item is one proposed delivery line staged in the cart. UnitPrice is captured
// from the catalog at Add time and travels with the item from here on.
type Item struct {
	ID            uuid.UUID       `json:"id"`
	ProductTypeID uuid.UUID       `json:"salad_type_id"`
	Name          string          `json:"name"`
	Emoji         string          `json:"emoji"`
	Quantity      int             `json:"quantity"`
	BatchNumber   string          `json:"batch_number"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// StoreBag accumulates the items destined for one store, with running totals
// maintained by addition and subtraction rather than re-summing.
type StoreBag struct {
	StoreID    uuid.UUID       `json:"store_id"`
	StoreName  string          `json:"store_name"`
	Items      []Item          `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Cart is the per-session staging area for a commit. It has a single owner
// and is never persisted; bags keep insertion order, which is also the order
// the committer processes stores in.
type Cart struct {
	bags []*StoreBag
}

// New creates an empty cart
func New() *Cart {
	return &Cart{}
}

// Add stages quantity units of a product for a store. The store and product
// must already be resolved against their catalogs by the caller.
func (c *Cart) Add(store *models.Store, product *models.ProductType, quantity int, batchNumber string) (*Item, error) {
	if store == nil || store.ID == uuid.Nil {
		return nil, ErrUnknownStore
	}
	if product == nil || product.ID == uuid.Nil {
		return nil, ErrUnknownProduct
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	item := Item{
		ID:            uuid.New(),
		ProductTypeID: product.ID,
		Name:          product.Name,
		Emoji:         product.Emoji,
		Quantity:      quantity,
		BatchNumber:   batchNumber,
		UnitPrice:     product.SalePrice,
	}
	lineValue := product.SalePrice.Mul(decimal.NewFromInt(int64(quantity)))

	bag := c.bagFor(store.ID)
	if bag == nil {
		bag = &StoreBag{
			StoreID:    store.ID,
			StoreName:  store.Name,
			TotalValue: decimal.Zero,
		}
		c.bags = append(c.bags, bag)
	}

	bag.Items = append(bag.Items, item)
	bag.TotalItems += quantity
	bag.TotalValue = bag.TotalValue.Add(lineValue)

	return &item, nil
}

// Remove takes an item out of a store's bag, restoring the bag's totals by
// subtraction. A bag left without items is dropped from the cart entirely.
func (c *Cart) Remove(storeID, itemID uuid.UUID) error {
	bag := c.bagFor(storeID)
	if bag == nil {
		return ErrItemNotFound
	}

	for i, item := range bag.Items {
		if item.ID != itemID {
			continue
		}

		bag.Items = append(bag.Items[:i], bag.Items[i+1:]...)
		bag.TotalItems -= item.Quantity
		bag.TotalValue = bag.TotalValue.Sub(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))

		if len(bag.Items) == 0 {
			c.dropBag(storeID)
		}
		return nil
	}

	return ErrItemNotFound
}

// Clear empties the cart. Used on cancel and after a successful commit.
func (c *Cart) Clear() {
	c.bags = nil
}

// Empty reports whether the cart has no staged items
func (c *Cart) Empty() bool {
	return len(c.bags) == 0
}

// Bags returns the store bags in insertion order
func (c *Cart) Bags() []*StoreBag {
	return c.bags
}

func (c *Cart) bagFor(storeID uuid.UUID) *StoreBag {
	for _, bag := range c.bags {
		if bag.StoreID == storeID {
			return bag
		}
	}
	return nil
}

func (c *Cart) dropBag(storeID uuid.UUID) {
	for i, bag := range c.bags {
		if bag.StoreID == storeID {
			c.bags = append(c.bags[:i], c.bags[i+1:]...)
			return
		}
	}
}
