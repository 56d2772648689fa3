package inventory

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/resilience"
)

// newTestDB opens a private in-memory database. A single connection makes
// transactions queue behind each other, standing in for row locks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&models.InventoryRecord{}, &models.StockMovement{}))
	return conn
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard})
}

func noSleepPolicy() *resilience.Policy {
	p := resilience.ForDatabase()
	p.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return &p
}

type ledgerFixture struct {
	conn     *gorm.DB
	ledger   *Ledger
	breakers *resilience.Registry
	cache    *fakeCache
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	conn := newTestDB(t)
	breakers := resilience.NewRegistry(resilience.BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute})
	cache := &fakeCache{}
	ledger, err := NewLedger(Params{
		DB:        db.NewFromGorm(conn, 0),
		Records:   NewRepository(conn),
		Movements: NewMovementRepository(conn),
		Cache:     cache,
		Breakers:  breakers,
		Policy:    noSleepPolicy(),
		Logger:    newTestLogger(),
	})
	require.NoError(t, err)
	return &ledgerFixture{conn: conn, ledger: ledger, breakers: breakers, cache: cache}
}

func (f *ledgerFixture) seed(t *testing.T, quantity, threshold int, location string) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	_, err := f.ledger.Create(context.Background(), CreateInput{
		ProductID:         productID,
		Quantity:          quantity,
		LowStockThreshold: threshold,
		Location:          location,
	})
	require.NoError(t, err)
	return productID
}

type fakeCache struct {
	mu       sync.Mutex
	patterns []string
	err      error
	onCall   func(pattern string)
}

func (c *fakeCache) InvalidatePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	c.patterns = append(c.patterns, pattern)
	hook := c.onCall
	err := c.err
	c.mu.Unlock()
	if hook != nil {
		hook(pattern)
	}
	return err
}

func (c *fakeCache) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.patterns))
	copy(out, c.patterns)
	return out
}

// passthroughTx runs fn without a real transaction.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
