package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

// Repository is the storage port for inventory records. Methods taking a tx
// run inside the caller's transaction and never begin or commit one.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *Record) error
	FindByProductID(ctx context.Context, productID uuid.UUID) (*Record, error)
	FindByProductIDWithLock(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*Record, error)
	SaveInTransaction(ctx context.Context, tx *gorm.DB, record *Record) error
	UpdateBatch(ctx context.Context, records []*Record) error
	UpdateLowStockThresholdBatch(ctx context.Context, location string, threshold int) (int64, error)
	FindLowStock(ctx context.Context, threshold *int) ([]*Record, error)
	FindOutOfStock(ctx context.Context, location *string) ([]*Record, error)
	GetStatusCounts(ctx context.Context) (StatusCounts, error)
	GetInventoryStatsByLocation(ctx context.Context) ([]LocationStats, error)
	Delete(ctx context.Context, productID uuid.UUID) error
}

// StatusCounts is the number of records per derived status.
type StatusCounts struct {
	Sufficient int64 `json:"sufficient"`
	LowStock   int64 `json:"low_stock"`
	OutOfStock int64 `json:"out_of_stock"`
	Total      int64 `json:"total"`
}

// ByStatus keys the counts by status.
func (c StatusCounts) ByStatus() map[enums.InventoryStatus]int64 {
	return map[enums.InventoryStatus]int64{
		enums.InventoryStatusSufficient: c.Sufficient,
		enums.InventoryStatusLowStock:   c.LowStock,
		enums.InventoryStatusOutOfStock: c.OutOfStock,
	}
}

// LocationStats aggregates stock for a single location.
type LocationStats struct {
	Location          string `json:"location" gorm:"column:location"`
	Records           int64  `json:"records" gorm:"column:records"`
	TotalQuantity     int64  `json:"total_quantity" gorm:"column:total_quantity"`
	AvailableQuantity int64  `json:"available_quantity" gorm:"column:available_quantity"`
	LowStock          int64  `json:"low_stock" gorm:"column:low_stock"`
	OutOfStock        int64  `json:"out_of_stock" gorm:"column:out_of_stock"`
}

const (
	lowStockCondition   = "available_quantity > 0 AND available_quantity <= low_stock_threshold"
	outOfStockCondition = "available_quantity <= 0"
)

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) Create(ctx context.Context, record *Record) error {
	model := toModel(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err,
				fmt.Sprintf("inventory for product %s already exists", record.ProductID))
		}
		return db.Translate(err, "create inventory record")
	}
	record.ID = model.ID
	record.CreatedAt = model.CreatedAt
	return nil
}

func (r *repository) FindByProductID(ctx context.Context, productID uuid.UUID) (*Record, error) {
	return r.find(r.db.WithContext(ctx), productID)
}

func (r *repository) FindByProductIDWithLock(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*Record, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "locked read requires a transaction")
	}
	return r.find(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), productID)
}

func (r *repository) find(q *gorm.DB, productID uuid.UUID) (*Record, error) {
	var model models.InventoryRecord
	err := q.Where("product_id = ?", productID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound(productID)
	}
	if err != nil {
		return nil, db.Translate(err, "load inventory record")
	}
	return fromModel(&model), nil
}

// SaveInTransaction writes the record's fields guarded by its version. A
// concurrent writer that bumped the version first yields a conflict.
func (r *repository) SaveInTransaction(ctx context.Context, tx *gorm.DB, record *Record) error {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ? AND version = ?", record.ID, record.Version).
		Updates(map[string]any{
			"quantity":            record.Quantity,
			"available_quantity":  record.AvailableQuantity,
			"low_stock_threshold": record.LowStockThreshold,
			"location":            normalizeLocation(record.Location),
			"last_restocked_at":   record.LastRestockedAt,
			"updated_at":          record.UpdatedAt,
			"version":             gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return db.Translate(res.Error, "save inventory record")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("inventory for product %s was modified concurrently", record.ProductID))
	}
	record.Version++
	return nil
}

// UpdateBatch writes every record with its version guard. Bind it to a
// transaction with WithTx; a conflict on any row then discards the whole batch.
func (r *repository) UpdateBatch(ctx context.Context, records []*Record) error {
	for _, record := range records {
		if err := r.SaveInTransaction(ctx, r.db, record); err != nil {
			return err
		}
	}
	return nil
}

// UpdateLowStockThresholdBatch sets the threshold for every record at a
// location in one statement and returns the number of rows changed.
func (r *repository) UpdateLowStockThresholdBatch(ctx context.Context, location string, threshold int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("location = ? AND low_stock_threshold <> ?", normalizeLocation(location), threshold).
		Updates(map[string]any{
			"low_stock_threshold": threshold,
			"updated_at":          r.now().UTC(),
			"version":             gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, db.Translate(res.Error, "update low stock thresholds")
	}
	return res.RowsAffected, nil
}

func (r *repository) FindLowStock(ctx context.Context, threshold *int) ([]*Record, error) {
	q := r.db.WithContext(ctx).Model(&models.InventoryRecord{})
	if threshold != nil {
		q = q.Where("available_quantity > 0 AND available_quantity <= ?", *threshold)
	} else {
		q = q.Where(lowStockCondition)
	}
	var rows []models.InventoryRecord
	if err := q.Order("available_quantity ASC, product_id ASC").Find(&rows).Error; err != nil {
		return nil, db.Translate(err, "find low stock")
	}
	return fromModels(rows), nil
}

func (r *repository) FindOutOfStock(ctx context.Context, location *string) ([]*Record, error) {
	q := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).Where(outOfStockCondition)
	if location != nil {
		q = q.Where("location = ?", normalizeLocation(*location))
	}
	var rows []models.InventoryRecord
	if err := q.Order("updated_at DESC, product_id ASC").Find(&rows).Error; err != nil {
		return nil, db.Translate(err, "find out of stock")
	}
	return fromModels(rows), nil
}

func (r *repository) GetStatusCounts(ctx context.Context) (StatusCounts, error) {
	var counts StatusCounts
	err := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Select(
			"COALESCE(SUM(CASE WHEN available_quantity > low_stock_threshold THEN 1 ELSE 0 END), 0) AS sufficient, " +
				"COALESCE(SUM(CASE WHEN " + lowStockCondition + " THEN 1 ELSE 0 END), 0) AS low_stock, " +
				"COALESCE(SUM(CASE WHEN " + outOfStockCondition + " THEN 1 ELSE 0 END), 0) AS out_of_stock, " +
				"COUNT(*) AS total",
		).
		Scan(&counts).Error
	if err != nil {
		return StatusCounts{}, db.Translate(err, "count inventory statuses")
	}
	return counts, nil
}

func (r *repository) GetInventoryStatsByLocation(ctx context.Context) ([]LocationStats, error) {
	var stats []LocationStats
	err := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Select(
			"location, COUNT(*) AS records, " +
				"COALESCE(SUM(quantity), 0) AS total_quantity, " +
				"COALESCE(SUM(available_quantity), 0) AS available_quantity, " +
				"COALESCE(SUM(CASE WHEN " + lowStockCondition + " THEN 1 ELSE 0 END), 0) AS low_stock, " +
				"COALESCE(SUM(CASE WHEN " + outOfStockCondition + " THEN 1 ELSE 0 END), 0) AS out_of_stock",
		).
		Group("location").
		Order("location ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, db.Translate(err, "inventory stats by location")
	}
	return stats, nil
}

// Delete removes the record outright, skipping domain checks.
func (r *repository) Delete(ctx context.Context, productID uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&models.InventoryRecord{})
	if res.Error != nil {
		return db.Translate(res.Error, "delete inventory record")
	}
	if res.RowsAffected == 0 {
		return NotFound(productID)
	}
	return nil
}
