package inventory

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/pagination"
)

// Service is the ledger surface consumed by the HTTP layer and workers.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*Record, error)
	Get(ctx context.Context, productID uuid.UUID) (*Record, error)
	Reduce(ctx context.Context, input ReduceInput) (*Record, error)
	Restock(ctx context.Context, input RestockInput) (*Record, error)
	UpdateBatch(ctx context.Context, updates []BatchUpdate) ([]*Record, error)
	UpdateLowStockThresholdBatch(ctx context.Context, location string, threshold int) (int64, error)
	FindLowStock(ctx context.Context, threshold *int) ([]*Record, error)
	FindOutOfStock(ctx context.Context, location *string) ([]*Record, error)
	GetStatusCounts(ctx context.Context) (StatusCounts, error)
	GetInventoryStatsByLocation(ctx context.Context) ([]LocationStats, error)
	Movements(ctx context.Context, productID uuid.UUID, params pagination.Params) (MovementPage, error)
	Delete(ctx context.Context, productID uuid.UUID) error
}

var _ Service = (*Ledger)(nil)
