package inventory

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

// DefaultLocation is used when a record is created without a location.
const DefaultLocation = "default"

// maxQuantity matches the integer column width in Postgres.
const maxQuantity = math.MaxInt32

// Record is the per-product stock entity. Quantity is units on hand,
// AvailableQuantity is what can still be sold (Quantity minus reservations).
type Record struct {
	ID                uuid.UUID
	ProductID         uuid.UUID
	Quantity          int
	ReservedQuantity  int
	AvailableQuantity int
	LowStockThreshold int
	Location          string
	LastRestockedAt   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64

	now func() time.Time
}

// Movement describes a quantity change produced by a domain mutation.
type Movement struct {
	Type           enums.StockMovementType
	Delta          int
	QuantityBefore int
	QuantityAfter  int
	Reason         string
}

// NewRecord builds a fresh record with every unit available.
func NewRecord(productID uuid.UUID, quantity, lowStockThreshold int, location string) (*Record, error) {
	return newRecordAt(productID, quantity, lowStockThreshold, location, time.Now)
}

func newRecordAt(productID uuid.UUID, quantity, lowStockThreshold int, location string, now func() time.Time) (*Record, error) {
	if productID == uuid.Nil {
		return nil, validationError("product_id", "product id is required")
	}
	if quantity < 0 || quantity > maxQuantity {
		return nil, validationError("quantity", fmt.Sprintf("quantity must be between 0 and %d", maxQuantity))
	}
	if lowStockThreshold < 0 {
		return nil, validationError("low_stock_threshold", "low stock threshold must be >= 0")
	}
	ts := now().UTC()
	return &Record{
		ID:                uuid.New(),
		ProductID:         productID,
		Quantity:          quantity,
		AvailableQuantity: quantity,
		LowStockThreshold: lowStockThreshold,
		Location:          normalizeLocation(location),
		CreatedAt:         ts,
		UpdatedAt:         ts,
		Version:           1,
		now:               now,
	}, nil
}

// SetClock overrides the time source used by mutators.
func (r *Record) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Record) touch() time.Time {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	ts := now().UTC()
	r.UpdatedAt = ts
	return ts
}

// Reduce removes amount units. Nothing changes when the call fails.
func (r *Record) Reduce(amount int, reason string) (Movement, error) {
	if amount <= 0 {
		return Movement{}, validationError("amount", "amount must be greater than zero")
	}
	if amount > r.AvailableQuantity {
		return Movement{}, InsufficientStock(r.ProductID, amount, r.AvailableQuantity)
	}
	before := r.Quantity
	r.Quantity -= amount
	r.AvailableQuantity -= amount
	r.touch()
	return Movement{
		Type:           enums.StockMovementTypeReduce,
		Delta:          -amount,
		QuantityBefore: before,
		QuantityAfter:  r.Quantity,
		Reason:         reason,
	}, nil
}

// Restock adds amount units and stamps LastRestockedAt.
func (r *Record) Restock(amount int, reason string) (Movement, error) {
	if amount <= 0 {
		return Movement{}, validationError("amount", "amount must be greater than zero")
	}
	if amount > maxQuantity-r.Quantity {
		return Movement{}, validationError("amount", "restock would overflow quantity")
	}
	before := r.Quantity
	r.Quantity += amount
	r.AvailableQuantity += amount
	ts := r.touch()
	r.LastRestockedAt = &ts
	return Movement{
		Type:           enums.StockMovementTypeRestock,
		Delta:          amount,
		QuantityBefore: before,
		QuantityAfter:  r.Quantity,
		Reason:         reason,
	}, nil
}

// Adjust sets the on-hand quantity to an absolute value, keeping existing
// reservations. The returned movement has a zero delta when nothing changed.
func (r *Record) Adjust(quantity int, reason string) (Movement, error) {
	if quantity < 0 || quantity > maxQuantity {
		return Movement{}, validationError("quantity", fmt.Sprintf("quantity must be between 0 and %d", maxQuantity))
	}
	if quantity < r.ReservedQuantity {
		return Movement{}, validationError("quantity", "quantity cannot drop below reserved units")
	}
	before := r.Quantity
	r.Quantity = quantity
	r.AvailableQuantity = quantity - r.ReservedQuantity
	r.touch()
	return Movement{
		Type:           enums.StockMovementTypeAdjustment,
		Delta:          quantity - before,
		QuantityBefore: before,
		QuantityAfter:  quantity,
		Reason:         reason,
	}, nil
}

func (r *Record) SetLowStockThreshold(threshold int) error {
	if threshold < 0 {
		return validationError("low_stock_threshold", "low stock threshold must be >= 0")
	}
	r.LowStockThreshold = threshold
	r.touch()
	return nil
}

// Status derives the stock level from the current counts.
func (r *Record) Status() enums.InventoryStatus {
	return enums.DeriveInventoryStatus(r.AvailableQuantity, r.LowStockThreshold)
}

func (r *Record) IsLowStock() bool {
	return r.Status() == enums.InventoryStatusLowStock
}

func (r *Record) IsOutOfStock() bool {
	return r.AvailableQuantity <= 0
}

// CacheKey is the cache namespace holding projections of this product.
func CacheKey(productID uuid.UUID) string {
	return "inventory:" + productID.String()
}

func normalizeLocation(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return DefaultLocation
	}
	return location
}

func validationError(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).
		WithDetails(map[string]any{"field": field})
}

// InsufficientStock builds the typed error returned when a reduction exceeds
// the available units.
func InsufficientStock(productID uuid.UUID, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock,
		fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", productID, requested, available)).
		WithDetails(map[string]any{
			"product_id": productID.String(),
			"requested":  requested,
			"available":  available,
		})
}

// NotFound builds the typed error for a missing inventory record.
func NotFound(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("inventory for product %s not found", productID))
}
