package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

func createRecord(t *testing.T, repo Repository, quantity, threshold int, location string) *Record {
	t.Helper()
	record, err := NewRecord(uuid.New(), quantity, threshold, location)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), record))
	return record
}

func TestRepositoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	created := createRecord(t, repo, 40, 5, "warehouse-a")

	got, err := repo.FindByProductID(ctx, created.ProductID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 40, got.Quantity)
	assert.Equal(t, 40, got.AvailableQuantity)
	assert.Equal(t, 0, got.ReservedQuantity)
	assert.Equal(t, "warehouse-a", got.Location)
	assert.Equal(t, int64(1), got.Version)

	_, err = repo.FindByProductID(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRepositoryCreateDuplicateProductConflicts(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	first := createRecord(t, repo, 1, 0, "")

	dup, err := NewRecord(first.ProductID, 3, 0, "")
	require.NoError(t, err)
	err = repo.Create(context.Background(), dup)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestRepositorySaveInTransactionGuardsVersion(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	created := createRecord(t, repo, 10, 0, "")

	first, err := repo.FindByProductID(ctx, created.ProductID)
	require.NoError(t, err)
	stale, err := repo.FindByProductID(ctx, created.ProductID)
	require.NoError(t, err)

	_, err = first.Reduce(3, "")
	require.NoError(t, err)
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return repo.SaveInTransaction(ctx, tx, first)
	}))
	assert.Equal(t, int64(2), first.Version)

	_, err = stale.Reduce(1, "")
	require.NoError(t, err)
	err = repo.SaveInTransaction(ctx, nil, stale)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	got, err := repo.FindByProductID(ctx, created.ProductID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Quantity)
}

func TestRepositoryUpdateBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	a := createRecord(t, repo, 10, 0, "")
	b := createRecord(t, repo, 20, 0, "")

	fresh, err := repo.FindByProductID(ctx, a.ProductID)
	require.NoError(t, err)
	stale, err := repo.FindByProductID(ctx, b.ProductID)
	require.NoError(t, err)
	stale.Version = 99

	_, err = fresh.Restock(5, "")
	require.NoError(t, err)
	_, err = stale.Restock(5, "")
	require.NoError(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		return repo.WithTx(tx).UpdateBatch(ctx, []*Record{fresh, stale})
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	got, err := repo.FindByProductID(ctx, a.ProductID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
	assert.Equal(t, int64(1), got.Version)
}

func TestRepositoryLockedReadRequiresTransaction(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	_, err := repo.FindByProductIDWithLock(context.Background(), nil, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestRepositoryUpdateLowStockThresholdBatch(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	a := createRecord(t, repo, 10, 2, "east")
	createRecord(t, repo, 10, 2, "east")
	createRecord(t, repo, 10, 8, "east")
	other := createRecord(t, repo, 10, 2, "west")

	updated, err := repo.UpdateLowStockThresholdBatch(ctx, "east", 8)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	got, err := repo.FindByProductID(ctx, a.ProductID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.LowStockThreshold)
	assert.Equal(t, int64(2), got.Version)

	got, err = repo.FindByProductID(ctx, other.ProductID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.LowStockThreshold)
}

func TestRepositoryStockQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	low := createRecord(t, repo, 3, 5, "east")
	createRecord(t, repo, 50, 5, "east")
	outEast := createRecord(t, repo, 0, 5, "east")
	outWest := createRecord(t, repo, 0, 1, "west")
	createRecord(t, repo, 8, 10, "west")

	lows, err := repo.FindLowStock(ctx, nil)
	require.NoError(t, err)
	require.Len(t, lows, 2)
	assert.Equal(t, low.ProductID, lows[0].ProductID)

	lows, err = repo.FindLowStock(ctx, intPtr(3))
	require.NoError(t, err)
	require.Len(t, lows, 1)
	assert.Equal(t, low.ProductID, lows[0].ProductID)

	outs, err := repo.FindOutOfStock(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, outs, 2)

	outs, err = repo.FindOutOfStock(ctx, strPtr("west"))
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, outWest.ProductID, outs[0].ProductID)
	assert.NotEqual(t, outEast.ProductID, outs[0].ProductID)

	counts, err := repo.GetStatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Sufficient: 1, LowStock: 2, OutOfStock: 2, Total: 5}, counts)

	stats, err := repo.GetInventoryStatsByLocation(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, LocationStats{Location: "east", Records: 3, TotalQuantity: 53, AvailableQuantity: 53, LowStock: 1, OutOfStock: 1}, stats[0])
	assert.Equal(t, LocationStats{Location: "west", Records: 2, TotalQuantity: 8, AvailableQuantity: 8, LowStock: 1, OutOfStock: 1}, stats[1])
}

func TestRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	record := createRecord(t, repo, 1, 0, "")

	require.NoError(t, repo.Delete(ctx, record.ProductID))
	_, err := repo.FindByProductID(ctx, record.ProductID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.True(t, pkgerrors.IsCode(repo.Delete(ctx, record.ProductID), pkgerrors.CodeNotFound))
}

func TestMovementRepository(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	records := NewRepository(conn)
	movements := NewMovementRepository(conn)
	record := createRecord(t, records, 10, 0, "")

	opID := uuid.New()
	movement, err := record.Reduce(4, "order")
	require.NoError(t, err)
	row, err := movements.Append(ctx, record, movement, &opID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, row.ID)

	found, err := movements.FindByOperationID(ctx, opID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, -4, found.Delta)

	missing, err := movements.FindByOperationID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = movements.Append(ctx, record, movement, &opID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	list, err := movements.ListByProductID(ctx, record.ProductID, nil, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
