package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductType is a catalog entry for a produced good. Reference data, created
// and retired outside this service.
type ProductType struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
	Name      string          `gorm:"not null" json:"name"`
	Emoji     string          `json:"emoji"`
	Color     string          `json:"color"`
	SalePrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"sale_price"`
}

// TableName keeps the table the production dashboard has always used.
func (ProductType) TableName() string { return "salad_types" }

// Store is a delivery destination.
type Store struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
}

func (Store) TableName() string { return "stores" }

// ProductionRequest is a pending ask from a store for units to be produced.
type ProductionRequest struct {
	ID        uuid.UUID               `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt          `gorm:"index" json:"-"`
	StoreID   *uuid.UUID              `gorm:"type:uuid" json:"store_id"`
	Status    string                  `gorm:"not null;default:pending" json:"status"`
	Notes     *string                 `json:"notes"`
	Items     []ProductionRequestItem `gorm:"foreignKey:RequestID" json:"items"`
	Store     *Store                  `gorm:"foreignKey:StoreID" json:"-"`
}

func (ProductionRequest) TableName() string { return "production_shipments" }

// ProductionRequestItem is one line of a ProductionRequest.
type ProductionRequestItem struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	RequestID     uuid.UUID `gorm:"type:uuid;column:shipment_id;not null;index" json:"shipment_id"`
	ProductTypeID uuid.UUID `gorm:"type:uuid;column:salad_type_id;not null" json:"salad_type_id"`
	Quantity      int       `gorm:"not null" json:"quantity"`
}

func (ProductionRequestItem) TableName() string { return "production_items" }

// Delivery is a persisted record of units shipped to one store on one day.
// The unique index across store and production date backs the one-delivery-
// per-store-per-day invariant; the commit path treats a violation as the
// signal to merge instead of create. TotalItems and TotalValue are maintained
// by addition as items are appended, never recomputed from the item rows.
type Delivery struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
	DeliveryNumber string          `gorm:"not null;uniqueIndex" json:"delivery_number"`
	StoreID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_deliveries_store_day,priority:1" json:"store_id"`
	ProductionDate time.Time       `gorm:"type:date;not null;uniqueIndex:idx_deliveries_store_day,priority:2" json:"production_date"`
	TotalItems     int             `gorm:"not null" json:"total_items"`
	TotalValue     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_value"`
	Status         string          `gorm:"not null;default:delivered" json:"status"`
	Notes          *string         `json:"notes"`
	CreatedBy      *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	Items          []DeliveryItem  `gorm:"foreignKey:DeliveryID" json:"delivery_items"`
	Store          *Store          `gorm:"foreignKey:StoreID" json:"-"`
}

func (Delivery) TableName() string { return "production_deliveries" }

// DeliveryItem is one line of a Delivery. UnitPrice is copied from the
// product catalog when the line enters the cart and never re-read, so later
// price changes do not rewrite history.
type DeliveryItem struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	DeliveryID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"delivery_id"`
	ProductTypeID uuid.UUID       `gorm:"type:uuid;column:salad_type_id;not null" json:"salad_type_id"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	BatchNumber   string          `gorm:"not null" json:"batch_number"`
	ProductType   *ProductType    `gorm:"foreignKey:ProductTypeID" json:"-"`
}

func (DeliveryItem) TableName() string { return "delivery_items" }

// DailySummary is one dashboard row: requested vs produced vs remaining for a
// product type on the current day. Derived, never persisted; the column tags
// match vw_production_dashboard so the view scans straight into it.
type DailySummary struct {
	ProductTypeID  uuid.UUID `gorm:"column:salad_type_id" json:"salad_type_id"`
	ProductName    string    `gorm:"column:salad_name" json:"salad_name"`
	ProductEmoji   string    `gorm:"column:salad_emoji" json:"salad_emoji"`
	ProductColor   string    `gorm:"column:salad_color" json:"salad_color"`
	TotalRequested int       `gorm:"column:total_requested" json:"total_requested"`
	TotalProduced  int       `gorm:"column:total_produced" json:"total_produced"`
	Remaining      int       `gorm:"column:remaining" json:"remaining"`
}

// Day truncates a timestamp to its calendar day in UTC. Production dates are
// days, not instants; every date comparison goes through this.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	// Apply all migrations
	err := db.AutoMigrate(
		&ProductType{},
		&Store{},
		&ProductionRequest{},
		&ProductionRequestItem{},
		&Delivery{},
		&DeliveryItem{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
