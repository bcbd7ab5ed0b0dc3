package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/cart"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/metrics"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/tracing"
)

// DeliveryWriter persists delivery headers and items
type DeliveryWriter interface {
	FindForStoreAndDate(ctx context.Context, storeID uuid.UUID, day time.Time) (*models.Delivery, error)
	CreateDelivery(ctx context.Context, delivery *models.Delivery) error
	GetTotals(ctx context.Context, deliveryID uuid.UUID) (int, decimal.Decimal, error)
	UpdateTotals(ctx context.Context, deliveryID uuid.UUID, totalItems int, totalValue decimal.Decimal) error
	CreateItem(ctx context.Context, item *models.DeliveryItem) error
}

// DeliveryIndexer pushes committed deliveries into the search index
type DeliveryIndexer interface {
	IndexDelivery(ctx context.Context, delivery *models.Delivery, storeName string) error
}

// MergeApprover decides whether new items may be merged into a store's
// existing same-day delivery. Merging is never silently assumed; a nil
// approver or a false answer leaves that store's bag uncommitted.
type MergeApprover func(storeID uuid.UUID, storeName string) bool

// StoreOutcome is the per-store result of a commit batch
type StoreOutcome string

const (
	OutcomeCreated StoreOutcome = "created"
	OutcomeMerged  StoreOutcome = "merged"
	OutcomeSkipped StoreOutcome = "skipped"
	OutcomeFailed  StoreOutcome = "failed"
)

// StoreCommitResult reports what happened to one store's bag
type StoreCommitResult struct {
	StoreID        uuid.UUID       `json:"store_id"`
	StoreName      string          `json:"store_name"`
	Outcome        StoreOutcome    `json:"outcome"`
	DeliveryNumber string          `json:"delivery_number,omitempty"`
	TotalItems     int             `json:"total_items"`
	TotalValue     decimal.Decimal `json:"total_value"`
	FailedItems    int             `json:"failed_items"`
	Error          string          `json:"error,omitempty"`
}

// CommitResult reports the per-store outcomes of one commit batch. A batch
// never collapses into a single pass/fail signal.
type CommitResult struct {
	Stores []StoreCommitResult `json:"stores"`
}

// DeliveryCommitter turns a cart into persisted delivery records, choosing
// per store between creating a new delivery and merging into the day's
// existing one. Stores are processed sequentially in cart order; the running
// delivery counter is read once per batch and incremented per created
// delivery.
type DeliveryCommitter struct {
	deliveries DeliveryWriter
	sequencer  *DeliverySequencer
	aggregator *DemandAggregator
	indexer    DeliveryIndexer
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

// NewDeliveryCommitter creates a new delivery committer
func NewDeliveryCommitter(
	deliveries DeliveryWriter,
	sequencer *DeliverySequencer,
	aggregator *DemandAggregator,
	indexer DeliveryIndexer,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *DeliveryCommitter {
	return &DeliveryCommitter{
		deliveries: deliveries,
		sequencer:  sequencer,
		aggregator: aggregator,
		indexer:    indexer,
		metrics:    metricsCollector,
		tracer:     tracer,
	}
}

// Commit persists every store bag in the cart for the given production day.
// An empty cart is rejected before any persistence call. On return the cart
// is cleared and the cached daily summary invalidated.
func (c *DeliveryCommitter) Commit(
	ctx context.Context,
	crt *cart.Cart,
	productionDate time.Time,
	notes string,
	createdBy *uuid.UUID,
	approve MergeApprover,
) (*CommitResult, error) {
	if crt == nil || crt.Empty() {
		return nil, cart.ErrEmptyCart
	}

	if c.tracer != nil {
		txn := c.tracer.StartTransaction("commit-deliveries")
		defer c.tracer.EndTransaction(txn)
	}

	day := models.Day(productionDate)

	counter, err := c.sequencer.LastSequence(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read delivery counter")
	}

	result := &CommitResult{Stores: make([]StoreCommitResult, 0, len(crt.Bags()))}
	for _, bag := range crt.Bags() {
		result.Stores = append(result.Stores, c.commitStore(ctx, bag, day, &counter, notes, createdBy, approve))
	}

	crt.Clear()
	if c.aggregator != nil {
		c.aggregator.InvalidateSummary(ctx, day)
	}
	if c.metrics != nil {
		c.metrics.IncrementCounter(metrics.CounterCommits)
	}

	return result, nil
}

func (c *DeliveryCommitter) commitStore(
	ctx context.Context,
	bag *cart.StoreBag,
	day time.Time,
	counter *int,
	notes string,
	createdBy *uuid.UUID,
	approve MergeApprover,
) StoreCommitResult {
	res := StoreCommitResult{
		StoreID:    bag.StoreID,
		StoreName:  bag.StoreName,
		TotalItems: bag.TotalItems,
		TotalValue: bag.TotalValue,
	}

	existing, err := c.deliveries.FindForStoreAndDate(ctx, bag.StoreID, day)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res
	}

	if existing != nil {
		return c.mergeInto(ctx, existing, bag, approve, res)
	}

	// Create path. The counter advances once per created delivery; a failed
	// header insert hands the number back.
	*counter++
	delivery := &models.Delivery{
		ID:             uuid.New(),
		DeliveryNumber: c.sequencer.FormatDeliveryNumber(day, *counter),
		StoreID:        bag.StoreID,
		ProductionDate: day,
		TotalItems:     bag.TotalItems,
		TotalValue:     bag.TotalValue,
		Status:         "delivered",
		CreatedBy:      createdBy,
	}
	if notes != "" {
		delivery.Notes = &notes
	}

	err = c.deliveries.CreateDelivery(ctx, delivery)
	if isDuplicateKey(err) {
		// Another session raced us. Either it took this store/day slot, in
		// which case we switch to the merge path, or it burned our number,
		// in which case we re-read the counter and try once more.
		*counter--
		if raced, ferr := c.deliveries.FindForStoreAndDate(ctx, bag.StoreID, day); ferr == nil && raced != nil {
			log.Warn().
				Str("store", bag.StoreName).
				Str("delivery_number", raced.DeliveryNumber).
				Msg("Concurrent delivery detected for store and day, switching to merge")
			return c.mergeInto(ctx, raced, bag, approve, res)
		}

		last, serr := c.sequencer.LastSequence(ctx)
		if serr != nil {
			res.Outcome = OutcomeFailed
			res.Error = serr.Error()
			return res
		}
		*counter = last + 1
		delivery.DeliveryNumber = c.sequencer.FormatDeliveryNumber(day, *counter)
		err = c.deliveries.CreateDelivery(ctx, delivery)
	}
	if err != nil {
		*counter--
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		if c.metrics != nil {
			c.metrics.RecordError("delivery_commit")
		}
		return res
	}

	res.FailedItems = c.insertItems(ctx, delivery.ID, bag)
	res.Outcome = OutcomeCreated
	res.DeliveryNumber = delivery.DeliveryNumber

	log.Info().
		Str("store", bag.StoreName).
		Str("delivery_number", delivery.DeliveryNumber).
		Int("total_items", bag.TotalItems).
		Msg("Delivery created")

	if c.metrics != nil {
		c.metrics.IncrementCounter(metrics.CounterDeliveriesCreated)
		c.metrics.RecordSuccess("delivery_commit")
	}
	c.index(ctx, delivery, bag.StoreName)

	return res
}

// mergeInto appends a bag to an existing delivery: totals are advanced by
// addition, items appended, the delivery number left untouched.
func (c *DeliveryCommitter) mergeInto(
	ctx context.Context,
	existing *models.Delivery,
	bag *cart.StoreBag,
	approve MergeApprover,
	res StoreCommitResult,
) StoreCommitResult {
	if approve == nil || !approve(bag.StoreID, bag.StoreName) {
		res.Outcome = OutcomeSkipped
		res.DeliveryNumber = existing.DeliveryNumber
		if c.metrics != nil {
			c.metrics.IncrementCounter(metrics.CounterMergesSkipped)
		}
		return res
	}

	currentItems, currentValue, err := c.deliveries.GetTotals(ctx, existing.ID)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res
	}

	newItems := currentItems + bag.TotalItems
	newValue := currentValue.Add(bag.TotalValue)
	if err := c.deliveries.UpdateTotals(ctx, existing.ID, newItems, newValue); err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		if c.metrics != nil {
			c.metrics.RecordError("delivery_commit")
		}
		return res
	}

	res.FailedItems = c.insertItems(ctx, existing.ID, bag)
	res.Outcome = OutcomeMerged
	res.DeliveryNumber = existing.DeliveryNumber

	log.Info().
		Str("store", bag.StoreName).
		Str("delivery_number", existing.DeliveryNumber).
		Int("total_items", newItems).
		Msg("Items merged into existing delivery")

	if c.metrics != nil {
		c.metrics.IncrementCounter(metrics.CounterDeliveriesMerged)
		c.metrics.RecordSuccess("delivery_commit")
	}

	existing.TotalItems = newItems
	existing.TotalValue = newValue
	c.index(ctx, existing, bag.StoreName)

	return res
}

// insertItems persists the bag's lines one by one. A failed line is logged
// and counted, never fatal; the delivery just ends up short of it.
func (c *DeliveryCommitter) insertItems(ctx context.Context, deliveryID uuid.UUID, bag *cart.StoreBag) int {
	failed := 0
	for _, item := range bag.Items {
		row := &models.DeliveryItem{
			ID:            uuid.New(),
			DeliveryID:    deliveryID,
			ProductTypeID: item.ProductTypeID,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			BatchNumber:   item.BatchNumber,
		}
		if err := c.deliveries.CreateItem(ctx, row); err != nil {
			failed++
			log.Error().Err(err).
				Str("product", item.Name).
				Int("quantity", item.Quantity).
				Msg("Failed to insert delivery item, continuing with remaining items")
		}
	}

	if failed > 0 && c.metrics != nil {
		c.metrics.IncrementCounterBy(metrics.CounterItemInsertsFailed, int64(failed))
	}
	return failed
}

func (c *DeliveryCommitter) index(ctx context.Context, delivery *models.Delivery, storeName string) {
	if c.indexer == nil {
		return
	}
	if err := c.indexer.IndexDelivery(ctx, delivery, storeName); err != nil {
		log.Warn().Err(err).
			Str("delivery_number", delivery.DeliveryNumber).
			Msg("Failed to index delivery")
	}
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key")
}
