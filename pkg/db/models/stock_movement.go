package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// StockMovement is an append-only journal entry written alongside every
// committed quantity change.
type StockMovement struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	InventoryID    uuid.UUID               `gorm:"column:inventory_id;type:uuid;not null;index"`
	ProductID      uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	Type           enums.StockMovementType `gorm:"column:type;type:text;not null"`
	Delta          int                     `gorm:"column:delta;not null"`
	QuantityBefore int                     `gorm:"column:quantity_before;not null"`
	QuantityAfter  int                     `gorm:"column:quantity_after;not null"`
	Reason         string                  `gorm:"column:reason;not null;default:''"`
	OperationID    *uuid.UUID              `gorm:"column:operation_id;type:uuid;uniqueIndex:stock_movements_operation_id_key"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (StockMovement) TableName() string { return "stock_movements" }

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	// UTC keeps journal cursors comparable across hosts.
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}
