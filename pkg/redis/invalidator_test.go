package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger/pkg/config"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/resilience"
)

func fastCachePolicy() resilience.Policy {
	p := resilience.ForCache()
	p.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}

func TestInvalidatePatternDeletesMatchingKeys(t *testing.T) {
	mock := newMockCmdable()
	mock.data["sl:cache:inventory:p1"] = "a"
	mock.data["sl:cache:inventory:p1:status"] = "b"
	mock.data["sl:cache:inventory:p2"] = "c"
	mock.data["sl:lock:job"] = "owner"

	inv := NewInvalidator(&Client{store: mock}, config.CacheConfig{}, nil, fastCachePolicy())
	assert.Equal(t, "sl:cache:inventory:p1*", inv.Match("inventory:p1"))

	deleted, err := inv.Invalidate(context.Background(), "inventory:p1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Contains(t, mock.data, "sl:cache:inventory:p2")
	assert.Contains(t, mock.data, "sl:lock:job")

	require.NoError(t, inv.InvalidatePattern(context.Background(), "inventory:"))
	assert.Len(t, mock.data, 1)
}

func TestInvalidateBatchesDeletes(t *testing.T) {
	mock := newMockCmdable()
	for i := 0; i < delBatchSize+20; i++ {
		mock.data[fmt.Sprintf("sl:cache:inventory:%04d", i)] = "x"
	}
	inv := NewInvalidator(&Client{store: mock}, config.CacheConfig{ScanCount: 1000}, nil, fastCachePolicy())

	deleted, err := inv.Invalidate(context.Background(), "inventory:")
	require.NoError(t, err)
	assert.Equal(t, delBatchSize+20, deleted)
	assert.Empty(t, mock.data)
}

func TestInvalidateRetriesAndTripsBreaker(t *testing.T) {
	mock := newMockCmdable()
	mock.scanErr = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	breaker := resilience.NewBreaker(resilience.BreakerConfig{Name: resilience.ResourceCache, FailureThreshold: 2, RecoveryTimeout: time.Minute})
	inv := NewInvalidator(&Client{store: mock}, config.CacheConfig{}, breaker, fastCachePolicy())

	err := inv.InvalidatePattern(context.Background(), "inventory:p1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, 2, mock.scanCalls)

	_ = inv.InvalidatePattern(context.Background(), "inventory:p1")
	assert.Equal(t, resilience.StateOpen, breaker.State())

	err = inv.InvalidatePattern(context.Background(), "inventory:p1")
	assert.True(t, resilience.IsOpen(err))
	assert.Equal(t, 4, mock.scanCalls)
}
