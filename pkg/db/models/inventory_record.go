package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventoryRecord is the persisted stock row, one per product. Status and
// reserved units are derived on read and have no column.
type InventoryRecord struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex:inventory_records_product_id_key"`
	Quantity          int        `gorm:"column:quantity;not null;default:0;check:chk_inventory_quantity,quantity >= 0"`
	AvailableQuantity int        `gorm:"column:available_quantity;not null;default:0;check:chk_inventory_available,available_quantity >= 0 AND available_quantity <= quantity"`
	LowStockThreshold int        `gorm:"column:low_stock_threshold;not null;default:0;check:chk_inventory_threshold,low_stock_threshold >= 0"`
	Location          string     `gorm:"column:location;not null;default:'default';index"`
	LastRestockedAt   *time.Time `gorm:"column:last_restocked_at"`
	Version           int64      `gorm:"column:version;not null;default:1"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (InventoryRecord) TableName() string { return "inventory_records" }

// BeforeCreate assigns an id when the caller did not.
func (r *InventoryRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
