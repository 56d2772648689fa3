package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/pagination"
	"github.com/angelmondragon/stockledger/pkg/resilience"
)

// CreateInput seeds a new inventory record.
type CreateInput struct {
	ProductID         uuid.UUID
	Quantity          int
	LowStockThreshold int
	Location          string
}

// StockChangeInput describes a reduce or restock request. A non-nil
// OperationID makes the call idempotent across requests: replays return the
// current record without applying the change again. Without one, an id is
// generated per call so retries inside the call never apply twice.
type StockChangeInput struct {
	ProductID   uuid.UUID
	Amount      int
	Reason      string
	OperationID *uuid.UUID
}

type (
	ReduceInput  = StockChangeInput
	RestockInput = StockChangeInput
)

// BatchUpdate sets absolute values on one record. Nil fields are left alone.
type BatchUpdate struct {
	ProductID         uuid.UUID
	Quantity          *int
	LowStockThreshold *int
	Reason            string
}

// Params wires a Ledger.
type Params struct {
	DB        db.TxRunner
	Records   Repository
	Movements MovementRepository
	// Cache is optional; without it mutations skip invalidation.
	Cache             CacheInvalidator
	Breakers          *resilience.Registry
	Policy            *resilience.Policy
	Logger            *logger.Logger
	Metrics           *metrics.InventoryMetrics
	ResilienceMetrics *metrics.ResilienceMetrics
	// AttemptTimeout bounds every storage attempt. Zero disables the bound.
	AttemptTimeout time.Duration
	Now            func() time.Time
}

// Ledger is the only path through which stock changes reach storage. Every
// storage call runs under the database retry policy inside the database
// circuit breaker.
type Ledger struct {
	db         db.TxRunner
	records    Repository
	movements  MovementRepository
	cache      CacheInvalidator
	breaker    *resilience.Breaker
	policy     resilience.Policy
	logg       *logger.Logger
	metrics    *metrics.InventoryMetrics
	resMetrics *metrics.ResilienceMetrics
	timeout    time.Duration
	now        func() time.Time
}

// NewLedger validates params and builds a Ledger.
func NewLedger(p Params) (*Ledger, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Records == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if p.Movements == nil {
		return nil, fmt.Errorf("movement repository required")
	}
	if p.Breakers == nil {
		return nil, fmt.Errorf("breaker registry required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	policy := resilience.ForDatabase()
	if p.Policy != nil {
		policy = *p.Policy
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		db:         p.DB,
		records:    p.Records,
		movements:  p.Movements,
		cache:      p.Cache,
		breaker:    p.Breakers.Get(resilience.ResourceDatabase),
		policy:     policy,
		logg:       p.Logger,
		metrics:    p.Metrics,
		resMetrics: p.ResilienceMetrics,
		timeout:    p.AttemptTimeout,
		now:        now,
	}, nil
}

func (l *Ledger) Create(ctx context.Context, input CreateInput) (*Record, error) {
	ctx = l.logg.WithProductID(ctx, input.ProductID.String())
	record, err := newRecordAt(input.ProductID, input.Quantity, input.LowStockThreshold, input.Location, l.now)
	if err != nil {
		l.observe(ctx, "create", time.Now(), err)
		return nil, err
	}
	attempt := 0
	created, err := run(ctx, l, "create", func(ctx context.Context) (*Record, error) {
		attempt++
		err := l.records.Create(ctx, record)
		if err == nil || attempt == 1 || !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return record, err
		}
		// An earlier attempt may have committed before its acknowledgement was
		// lost. The row is ours only if it carries the id generated above.
		existing, findErr := l.records.FindByProductID(ctx, record.ProductID)
		if findErr != nil || existing.ID != record.ID {
			return nil, err
		}
		return existing, nil
	})
	if err != nil {
		return nil, err
	}
	l.invalidate(ctx, CacheKey(created.ProductID))
	l.logg.Info(ctx, "inventory record created")
	return created, nil
}

func (l *Ledger) Get(ctx context.Context, productID uuid.UUID) (*Record, error) {
	if productID == uuid.Nil {
		return nil, validationError("product_id", "product id is required")
	}
	return run(ctx, l, "get", func(ctx context.Context) (*Record, error) {
		return l.records.FindByProductID(ctx, productID)
	})
}

// Reduce removes units from a product's stock. It fails with an
// INSUFFICIENT_STOCK error, leaving stock untouched, when the amount exceeds
// what is available.
func (l *Ledger) Reduce(ctx context.Context, input ReduceInput) (*Record, error) {
	return l.mutate(ctx, enums.StockMovementTypeReduce, input, func(r *Record) (Movement, error) {
		return r.Reduce(input.Amount, input.Reason)
	})
}

func (l *Ledger) Restock(ctx context.Context, input RestockInput) (*Record, error) {
	return l.mutate(ctx, enums.StockMovementTypeRestock, input, func(r *Record) (Movement, error) {
		return r.Restock(input.Amount, input.Reason)
	})
}

// mutate runs the locked read-modify-write: lock the row, skip replays of a
// known operation, apply the domain change, persist record and journal entry,
// commit, then invalidate the cache.
func (l *Ledger) mutate(ctx context.Context, kind enums.StockMovementType, input StockChangeInput, apply func(*Record) (Movement, error)) (*Record, error) {
	if input.ProductID == uuid.Nil {
		return nil, validationError("product_id", "product id is required")
	}
	operation := string(kind)
	operationID := uuid.New()
	if input.OperationID != nil {
		operationID = *input.OperationID
	}
	ctx = l.logg.WithProductID(ctx, input.ProductID.String())
	ctx = l.logg.WithField(ctx, "operation_id", operationID.String())

	var applied *Movement
	attempt := 0
	record, err := run(ctx, l, operation, func(ctx context.Context) (*Record, error) {
		attempt++
		applied = nil
		var result *Record
		err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
			txCtx := txContext(ctx, tx)
			locked, err := l.records.FindByProductIDWithLock(txCtx, tx, input.ProductID)
			if err != nil {
				return err
			}
			existing, err := l.replayed(txCtx, tx, input.ProductID, operationID, kind)
			if err != nil {
				return err
			}
			if existing != nil {
				result = locked
				// A retry finding its own journal row means the previous
				// attempt committed and only the acknowledgement was lost.
				if attempt > 1 {
					applied = movementFromModel(existing)
				}
				return nil
			}
			locked.SetClock(l.now)
			movement, err := apply(locked)
			if err != nil {
				return err
			}
			if err := l.records.SaveInTransaction(txCtx, tx, locked); err != nil {
				return err
			}
			if _, err := l.movements.WithTx(tx).Append(txCtx, locked, movement, &operationID); err != nil {
				return err
			}
			result = locked
			applied = &movement
			return nil
		})
		if err != nil {
			return nil, db.Translate(err, operation+" inventory")
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	if applied == nil {
		l.logg.Info(ctx, "operation already applied, returning current state")
		return record, nil
	}
	l.metrics.AddUnits(string(applied.Type), abs(applied.Delta))
	l.invalidate(ctx, CacheKey(record.ProductID))
	return record, nil
}

// replayed returns the journal row already written for operationID, or nil.
// Reusing an id for another product or another kind of change is a conflict.
func (l *Ledger) replayed(ctx context.Context, tx *gorm.DB, productID, operationID uuid.UUID, kind enums.StockMovementType) (*models.StockMovement, error) {
	existing, err := l.movements.WithTx(tx).FindByOperationID(ctx, operationID)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.ProductID != productID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("operation %s was already applied to another product", operationID))
	}
	if existing.Type != kind {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("operation %s was already applied as %s", operationID, existing.Type))
	}
	return existing, nil
}

func movementFromModel(m *models.StockMovement) *Movement {
	return &Movement{
		Type:           m.Type,
		Delta:          m.Delta,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		Reason:         m.Reason,
	}
}

// UpdateBatch applies absolute quantity and threshold updates in a single
// transaction. Rows are locked one at a time in product order, so it is safe
// to run alongside Reduce and Restock.
func (l *Ledger) UpdateBatch(ctx context.Context, updates []BatchUpdate) ([]*Record, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	ordered := make([]BatchUpdate, len(updates))
	copy(ordered, updates)
	for _, u := range ordered {
		if u.ProductID == uuid.Nil {
			return nil, validationError("product_id", "product id is required")
		}
		if u.Quantity == nil && u.LowStockThreshold == nil {
			return nil, validationError("updates", fmt.Sprintf("no fields to update for product %s", u.ProductID))
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ProductID.String() < ordered[j].ProductID.String()
	})

	records, err := run(ctx, l, "update_batch", func(ctx context.Context) ([]*Record, error) {
		var out []*Record
		err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
			txCtx := txContext(ctx, tx)
			out = out[:0]
			type pending struct {
				record   *Record
				movement Movement
			}
			var journal []pending
			for _, u := range ordered {
				record, err := l.records.FindByProductIDWithLock(txCtx, tx, u.ProductID)
				if err != nil {
					return err
				}
				record.SetClock(l.now)
				if u.Quantity != nil {
					movement, err := record.Adjust(*u.Quantity, u.Reason)
					if err != nil {
						return err
					}
					if movement.Delta != 0 {
						journal = append(journal, pending{record: record, movement: movement})
					}
				}
				if u.LowStockThreshold != nil {
					if err := record.SetLowStockThreshold(*u.LowStockThreshold); err != nil {
						return err
					}
				}
				out = append(out, record)
			}
			if err := l.records.WithTx(tx).UpdateBatch(txCtx, out); err != nil {
				return err
			}
			for _, j := range journal {
				if _, err := l.movements.WithTx(tx).Append(txCtx, j.record, j.movement, nil); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, db.Translate(err, "update inventory batch")
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		l.invalidate(ctx, CacheKey(record.ProductID))
	}
	return records, nil
}

// UpdateLowStockThresholdBatch rewrites the threshold of every record at a
// location in one statement. It bypasses row locks and is meant for
// maintenance runs.
func (l *Ledger) UpdateLowStockThresholdBatch(ctx context.Context, location string, threshold int) (int64, error) {
	if threshold < 0 {
		return 0, validationError("low_stock_threshold", "low stock threshold must be >= 0")
	}
	ctx = l.logg.WithField(ctx, "location", normalizeLocation(location))
	updated, err := run(ctx, l, "update_threshold_batch", func(ctx context.Context) (int64, error) {
		return l.records.UpdateLowStockThresholdBatch(ctx, location, threshold)
	})
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		l.invalidate(ctx, allInventoryKeys)
	}
	return updated, nil
}

func (l *Ledger) FindLowStock(ctx context.Context, threshold *int) ([]*Record, error) {
	if threshold != nil && *threshold < 0 {
		return nil, validationError("threshold", "threshold must be >= 0")
	}
	return run(ctx, l, "find_low_stock", func(ctx context.Context) ([]*Record, error) {
		return l.records.FindLowStock(ctx, threshold)
	})
}

func (l *Ledger) FindOutOfStock(ctx context.Context, location *string) ([]*Record, error) {
	return run(ctx, l, "find_out_of_stock", func(ctx context.Context) ([]*Record, error) {
		return l.records.FindOutOfStock(ctx, location)
	})
}

// GetStatusCounts also refreshes the stock level gauges.
func (l *Ledger) GetStatusCounts(ctx context.Context) (StatusCounts, error) {
	counts, err := run(ctx, l, "status_counts", func(ctx context.Context) (StatusCounts, error) {
		return l.records.GetStatusCounts(ctx)
	})
	if err != nil {
		return StatusCounts{}, err
	}
	l.metrics.SetStockLevels(counts.LowStock, counts.OutOfStock)
	return counts, nil
}

func (l *Ledger) GetInventoryStatsByLocation(ctx context.Context) ([]LocationStats, error) {
	return run(ctx, l, "stats_by_location", func(ctx context.Context) ([]LocationStats, error) {
		return l.records.GetInventoryStatsByLocation(ctx)
	})
}

// MovementPage is one page of a product's journal, newest first.
type MovementPage struct {
	Items      []models.StockMovement
	NextCursor string
}

// Movements lists journal entries for a product using cursor pagination.
func (l *Ledger) Movements(ctx context.Context, productID uuid.UUID, params pagination.Params) (MovementPage, error) {
	if productID == uuid.Nil {
		return MovementPage{}, validationError("product_id", "product id is required")
	}
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return MovementPage{}, validationError("cursor", "cursor is invalid")
	}
	rows, err := run(ctx, l, "movements", func(ctx context.Context) ([]models.StockMovement, error) {
		return l.movements.ListByProductID(ctx, productID, after, pagination.LimitWithBuffer(params.Limit))
	})
	if err != nil {
		return MovementPage{}, err
	}
	items, next := pagination.Trim(rows, params.Limit, func(m models.StockMovement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return MovementPage{Items: items, NextCursor: next}, nil
}

// Delete removes a record without domain checks.
func (l *Ledger) Delete(ctx context.Context, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return validationError("product_id", "product id is required")
	}
	ctx = l.logg.WithProductID(ctx, productID.String())
	_, err := run(ctx, l, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.records.Delete(ctx, productID)
	})
	if err != nil {
		return err
	}
	l.invalidate(ctx, CacheKey(productID))
	l.logg.Warn(ctx, "inventory record deleted")
	return nil
}

// run executes op under the retry policy and database breaker, then records
// metrics and logs the final outcome.
func run[T any](ctx context.Context, l *Ledger, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	policy := l.policy
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		retryCtx := l.logg.WithFields(ctx, map[string]any{
			"operation": operation,
			"attempt":   attempt,
			"delay_ms":  delay.Milliseconds(),
		})
		l.logg.WarnErr(retryCtx, "retrying inventory operation", err)
		l.resMetrics.IncRetry(policy.Name)
	}

	value, outcome, err := resilience.Call(ctx, l.breaker, policy, func(ctx context.Context) (T, error) {
		return bounded(ctx, l.timeout, operation, op)
	})
	if err != nil && outcome.Attempts >= policy.MaxAttempts && policy.RetryCondition != nil && policy.RetryCondition(err) {
		l.resMetrics.IncExhausted(policy.Name)
	}
	l.observe(ctx, operation, start, err)
	return value, err
}

// bounded runs one attempt under timeout. Hitting that deadline while the
// caller's context is still live is a transient storage fault.
func bounded[T any](ctx context.Context, timeout time.Duration, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	value, err := op(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, pkgerrors.Wrap(pkgerrors.CodeTransient, err, operation+" timed out").
			WithDetails(map[string]any{"timeout": timeout.String()})
	}
	return value, err
}

func (l *Ledger) observe(ctx context.Context, operation string, start time.Time, err error) {
	result := outcomeFor(err)
	l.metrics.ObserveOperation(operation, result, time.Since(start))
	if err == nil {
		return
	}
	ctx = l.logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
	ctx = l.logg.WithField(ctx, "operation", operation)
	switch result {
	case metrics.OutcomeError:
		l.logg.Error(ctx, "inventory operation failed", err)
	case metrics.OutcomeUnavailable:
		l.logg.WarnErr(ctx, "inventory storage unavailable", err)
	default:
		l.logg.Debug(ctx, "inventory operation rejected: "+err.Error())
	}
}

// invalidate runs after commit. Failures are logged and never reach the caller.
func (l *Ledger) invalidate(ctx context.Context, pattern string) {
	if l.cache == nil {
		return
	}
	err := l.cache.InvalidatePattern(ctx, pattern)
	l.metrics.ObserveInvalidation(err)
	if err != nil {
		l.logg.WarnErr(l.logg.WithField(ctx, "pattern", pattern), "cache invalidation failed", err)
	}
}

func outcomeFor(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	if errors.Is(err, context.Canceled) {
		return metrics.OutcomeCanceled
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.OutcomeError
	}
	switch typed.Code() {
	case pkgerrors.CodeInsufficientStock:
		return metrics.OutcomeInsufficientStock
	case pkgerrors.CodeNotFound:
		return metrics.OutcomeNotFound
	case pkgerrors.CodeValidation:
		return metrics.OutcomeInvalid
	case pkgerrors.CodeConflict:
		return metrics.OutcomeConflict
	case pkgerrors.CodeTransient, pkgerrors.CodeCircuitOpen, pkgerrors.CodeDependency:
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}

// txContext prefers the transaction's context, which carries the statement
// timeout.
func txContext(ctx context.Context, tx *gorm.DB) context.Context {
	if tx != nil && tx.Statement != nil && tx.Statement.Context != nil {
		return tx.Statement.Context
	}
	return ctx
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
