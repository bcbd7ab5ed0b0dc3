package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
)

// LedgerReader reads committed deliveries and their items
type LedgerReader interface {
	ListForDate(ctx context.Context, day time.Time) ([]models.Delivery, error)
	ItemsForDelivery(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryItem, error)
	FindForStoreAndDate(ctx context.Context, storeID uuid.UUID, day time.Time) (*models.Delivery, error)
}

// Placeholder labels shown when a join target is missing. The row still
// renders; only the label degrades.
const (
	placeholderStoreName   = "Loja"
	placeholderProductName = "Salada"
	placeholderEmoji       = "🥗"
)

// DeliveryItemView is one delivery line with its product resolved for display
type DeliveryItemView struct {
	ID            uuid.UUID       `json:"id"`
	ProductTypeID uuid.UUID       `json:"salad_type_id"`
	ProductName   string          `json:"salad_name"`
	ProductEmoji  string          `json:"salad_emoji"`
	Quantity      int             `json:"quantity"`
	BatchNumber   string          `json:"batch_number"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// DeliveryView is one committed delivery with its store resolved and items attached
type DeliveryView struct {
	ID             uuid.UUID          `json:"id"`
	DeliveryNumber string             `json:"delivery_number"`
	StoreID        uuid.UUID          `json:"store_id"`
	StoreName      string             `json:"store_name"`
	ProductionDate time.Time          `json:"production_date"`
	TotalItems     int                `json:"total_items"`
	TotalValue     decimal.Decimal    `json:"total_value"`
	Status         string             `json:"status"`
	Notes          *string            `json:"notes,omitempty"`
	Items          []DeliveryItemView `json:"delivery_items"`
}

// StoreDeliveries folds everything shipped to one store today into one bag
type StoreDeliveries struct {
	StoreID    uuid.UUID          `json:"store_id"`
	StoreName  string             `json:"store_name"`
	Items      []DeliveryItemView `json:"items"`
	TotalItems int                `json:"total_items"`
	TotalValue decimal.Decimal    `json:"total_value"`
}

// DeliveryLedger queries today's committed deliveries. It is the source of
// truth for whether a store already has a delivery on a given day.
type DeliveryLedger struct {
	deliveries LedgerReader
}

// NewDeliveryLedger creates a new delivery ledger
func NewDeliveryLedger(deliveries LedgerReader) *DeliveryLedger {
	return &DeliveryLedger{deliveries: deliveries}
}

// TodaysDeliveries returns the day's deliveries, newest first, each with its
// items. A delivery whose items cannot be fetched is skipped, not fatal.
func (l *DeliveryLedger) TodaysDeliveries(ctx context.Context, day time.Time) ([]DeliveryView, error) {
	deliveries, err := l.deliveries.ListForDate(ctx, models.Day(day))
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch today's deliveries")
	}

	views := make([]DeliveryView, 0, len(deliveries))
	for _, delivery := range deliveries {
		items, err := l.deliveries.ItemsForDelivery(ctx, delivery.ID)
		if err != nil {
			log.Error().Err(err).
				Str("delivery_number", delivery.DeliveryNumber).
				Msg("Failed to fetch delivery items, skipping delivery")
			continue
		}

		storeName := placeholderStoreName
		if delivery.Store != nil && delivery.Store.Name != "" {
			storeName = delivery.Store.Name
		}

		view := DeliveryView{
			ID:             delivery.ID,
			DeliveryNumber: delivery.DeliveryNumber,
			StoreID:        delivery.StoreID,
			StoreName:      storeName,
			ProductionDate: delivery.ProductionDate,
			TotalItems:     delivery.TotalItems,
			TotalValue:     delivery.TotalValue,
			Status:         delivery.Status,
			Notes:          delivery.Notes,
			Items:          make([]DeliveryItemView, 0, len(items)),
		}

		for _, item := range items {
			name, emoji := placeholderProductName, placeholderEmoji
			if item.ProductType != nil && item.ProductType.Name != "" {
				name, emoji = item.ProductType.Name, item.ProductType.Emoji
			}
			view.Items = append(view.Items, DeliveryItemView{
				ID:            item.ID,
				ProductTypeID: item.ProductTypeID,
				ProductName:   name,
				ProductEmoji:  emoji,
				Quantity:      item.Quantity,
				BatchNumber:   item.BatchNumber,
				UnitPrice:     item.UnitPrice,
			})
		}

		views = append(views, view)
	}

	return views, nil
}

// GroupByStore folds all items across all of a day's deliveries into one bag
// per store, accumulating each bag's totals by addition.
func (l *DeliveryLedger) GroupByStore(deliveries []DeliveryView) []StoreDeliveries {
	index := make(map[uuid.UUID]int)
	grouped := make([]StoreDeliveries, 0)

	for _, delivery := range deliveries {
		i, ok := index[delivery.StoreID]
		if !ok {
			i = len(grouped)
			index[delivery.StoreID] = i
			grouped = append(grouped, StoreDeliveries{
				StoreID:    delivery.StoreID,
				StoreName:  delivery.StoreName,
				TotalValue: decimal.Zero,
			})
		}

		for _, item := range delivery.Items {
			grouped[i].Items = append(grouped[i].Items, item)
			grouped[i].TotalItems += item.Quantity
			grouped[i].TotalValue = grouped[i].TotalValue.Add(
				item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	return grouped
}

// FindForStoreAndDate reports the existing delivery for a store/day pair, if any
func (l *DeliveryLedger) FindForStoreAndDate(ctx context.Context, storeID uuid.UUID, day time.Time) (*models.Delivery, error) {
	return l.deliveries.FindForStoreAndDate(ctx, storeID, models.Day(day))
}
