package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
)

// ProductTypeRepository provides access to the product catalog
type ProductTypeRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewProductTypeRepository creates a new product type repository
func NewProductTypeRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ProductTypeRepository {
	return &ProductTypeRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// List returns all product types ordered by name
func (r *ProductTypeRepository) List(ctx context.Context) ([]models.ProductType, error) {
	var types []models.ProductType
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).Order("name").Find(&types).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list product types")
	}
	return types, nil
}

// GetByID gets a product type by ID
func (r *ProductTypeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ProductType, error) {
	var productType models.ProductType
	err := r.readOnlyDB.WithContext(ctx).First(&productType, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get product type by ID")
	}
	return &productType, nil
}

// StoreRepository provides access to store data
type StoreRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewStoreRepository creates a new store repository
func NewStoreRepository(db *gorm.DB, readOnlyDB *gorm.DB) *StoreRepository {
	return &StoreRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// List returns all stores ordered by name
func (r *StoreRepository) List(ctx context.Context) ([]models.Store, error) {
	var stores []models.Store
	err := r.readOnlyDB.WithContext(ctx).Order("name").Find(&stores).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stores")
	}
	return stores, nil
}

// GetByID gets a store by ID
func (r *StoreRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	err := r.readOnlyDB.WithContext(ctx).First(&store, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get store by ID")
	}
	return &store, nil
}

// ProductionRequestRepository provides access to production requests
type ProductionRequestRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewProductionRequestRepository creates a new production request repository
func NewProductionRequestRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ProductionRequestRepository {
	return &ProductionRequestRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create persists a production request together with its items
func (r *ProductionRequestRepository) Create(ctx context.Context, request *models.ProductionRequest) error {
	// Use write DB for writes
	return r.db.WithContext(ctx).Create(request).Error
}

// PendingRequestIDs returns the ids of pending requests created on the given day
func (r *ProductionRequestRepository) PendingRequestIDs(ctx context.Context, day time.Time) ([]uuid.UUID, error) {
	day = models.Day(day)
	var ids []uuid.UUID
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.ProductionRequest{}).
		Where("status = ? AND created_at >= ? AND created_at < ?", "pending", day, day.AddDate(0, 0, 1)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pending request ids")
	}
	return ids, nil
}

// SumItemQuantities sums request item quantities for one product type across
// the given request ids. Callers must not pass an empty id set.
func (r *ProductionRequestRepository) SumItemQuantities(ctx context.Context, productTypeID uuid.UUID, requestIDs []uuid.UUID) (int, error) {
	var total int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.ProductionRequestItem{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("salad_type_id = ? AND shipment_id IN ?", productTypeID, requestIDs).
		Scan(&total).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to sum requested quantities")
	}
	return int(total), nil
}

// DeliveryRepository provides access to delivery and delivery item data
type DeliveryRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewDeliveryRepository creates a new delivery repository
func NewDeliveryRepository(db *gorm.DB, readOnlyDB *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// DailySummaryView reads the precomputed dashboard aggregate view
func (r *DeliveryRepository) DailySummaryView(ctx context.Context, day time.Time) ([]models.DailySummary, error) {
	var rows []models.DailySummary
	err := r.readOnlyDB.WithContext(ctx).
		Raw("SELECT salad_type_id, salad_name, salad_emoji, salad_color, total_requested, total_produced, remaining FROM vw_production_dashboard").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to read production dashboard view")
	}
	return rows, nil
}

// IDsForDate returns the ids of deliveries recorded for the given day
func (r *DeliveryRepository) IDsForDate(ctx context.Context, day time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("production_date = ?", models.Day(day)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get delivery ids for date")
	}
	return ids, nil
}

// SumItemQuantities sums delivery item quantities for one product type across
// the given delivery ids. Callers must not pass an empty id set.
func (r *DeliveryRepository) SumItemQuantities(ctx context.Context, productTypeID uuid.UUID, deliveryIDs []uuid.UUID) (int, error) {
	var total int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.DeliveryItem{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("salad_type_id = ? AND delivery_id IN ?", productTypeID, deliveryIDs).
		Scan(&total).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to sum produced quantities")
	}
	return int(total), nil
}

// ListForDate returns deliveries for the given day, newest first, with their
// store resolved
func (r *DeliveryRepository) ListForDate(ctx context.Context, day time.Time) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Store").
		Where("production_date = ?", models.Day(day)).
		Order("created_at DESC").
		Find(&deliveries).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list deliveries for date")
	}
	return deliveries, nil
}

// ItemsForDelivery returns the items of one delivery with their product resolved
func (r *DeliveryRepository) ItemsForDelivery(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryItem, error) {
	var items []models.DeliveryItem
	err := r.readOnlyDB.WithContext(ctx).
		Preload("ProductType").
		Where("delivery_id = ?", deliveryID).
		Order("created_at").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get delivery items")
	}
	return items, nil
}

// FindForStoreAndDate returns the delivery for a store on a day, or nil when
// none exists
func (r *DeliveryRepository) FindForStoreAndDate(ctx context.Context, storeID uuid.UUID, day time.Time) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.readOnlyDB.WithContext(ctx).
		Where("store_id = ? AND production_date = ?", storeID, models.Day(day)).
		First(&delivery).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find delivery for store and date")
	}
	return &delivery, nil
}

// LastDeliveryNumber returns the delivery number of the most recently created
// delivery across all time, or "" when none exists yet
func (r *DeliveryRepository) LastDeliveryNumber(ctx context.Context) (string, error) {
	var delivery models.Delivery
	err := r.readOnlyDB.WithContext(ctx).
		Select("delivery_number").
		Order("created_at DESC").
		First(&delivery).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to get last delivery number")
	}
	return delivery.DeliveryNumber, nil
}

// GetTotals reads the current running totals of a delivery
func (r *DeliveryRepository) GetTotals(ctx context.Context, deliveryID uuid.UUID) (int, decimal.Decimal, error) {
	var delivery models.Delivery
	// Totals are read from the write DB so a merge sees its own prior writes
	err := r.db.WithContext(ctx).
		Select("total_items", "total_value").
		First(&delivery, "id = ?", deliveryID).Error
	if err != nil {
		return 0, decimal.Zero, errors.Wrap(err, "failed to get delivery totals")
	}
	return delivery.TotalItems, delivery.TotalValue, nil
}

// UpdateTotals persists new running totals for a delivery
func (r *DeliveryRepository) UpdateTotals(ctx context.Context, deliveryID uuid.UUID, totalItems int, totalValue decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("id = ?", deliveryID).
		Updates(map[string]interface{}{
			"total_items": totalItems,
			"total_value": totalValue,
		})

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update delivery totals")
	}

	if result.RowsAffected == 0 {
		return errors.New("no delivery updated")
	}

	return nil
}

// CreateDelivery persists a new delivery header
func (r *DeliveryRepository) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

// CreateItem persists a single delivery item
func (r *DeliveryRepository) CreateItem(ctx context.Context, item *models.DeliveryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}
