package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/pagination"
)

// MovementRepository manages the stock movement journal.
type MovementRepository interface {
	WithTx(tx *gorm.DB) MovementRepository
	Append(ctx context.Context, record *Record, movement Movement, operationID *uuid.UUID) (*models.StockMovement, error)
	FindByOperationID(ctx context.Context, operationID uuid.UUID) (*models.StockMovement, error)
	ListByProductID(ctx context.Context, productID uuid.UUID, after *pagination.Cursor, limit int) ([]models.StockMovement, error)
}

type movementRepository struct {
	db *gorm.DB
}

// NewMovementRepository returns a journal repository bound to the provided database.
func NewMovementRepository(conn *gorm.DB) MovementRepository {
	return &movementRepository{db: conn}
}

func (r *movementRepository) WithTx(tx *gorm.DB) MovementRepository {
	if tx == nil {
		return r
	}
	return &movementRepository{db: tx}
}

func (r *movementRepository) Append(ctx context.Context, record *Record, movement Movement, operationID *uuid.UUID) (*models.StockMovement, error) {
	row := &models.StockMovement{
		InventoryID:    record.ID,
		ProductID:      record.ProductID,
		Type:           movement.Type,
		Delta:          movement.Delta,
		QuantityBefore: movement.QuantityBefore,
		QuantityAfter:  movement.QuantityAfter,
		Reason:         movement.Reason,
		OperationID:    operationID,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, db.Translate(err, "append stock movement")
	}
	return row, nil
}

// FindByOperationID returns nil without error when no movement carries the id.
func (r *movementRepository) FindByOperationID(ctx context.Context, operationID uuid.UUID) (*models.StockMovement, error) {
	var row models.StockMovement
	err := r.db.WithContext(ctx).Where("operation_id = ?", operationID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Translate(err, "find stock movement")
	}
	return &row, nil
}

// ListByProductID returns up to limit rows newest first, strictly after the
// cursor when one is given. Callers pass pagination.LimitWithBuffer to detect
// a following page.
func (r *movementRepository) ListByProductID(ctx context.Context, productID uuid.UUID, after *pagination.Cursor, limit int) ([]models.StockMovement, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	query := r.db.WithContext(ctx).Where("product_id = ?", productID)
	if after != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var rows []models.StockMovement
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, db.Translate(err, "list stock movements")
	}
	return rows, nil
}
