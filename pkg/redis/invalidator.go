package redis

import (
	"context"
	"strings"

	"github.com/angelmondragon/stockledger/pkg/config"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/resilience"
)

const delBatchSize = 500

type keyStore interface {
	ScanKeys(ctx context.Context, match string, count int64) ([]string, error)
	Del(ctx context.Context, keys ...string) error
	Key(parts ...string) string
}

// Invalidator deletes cached entries by key prefix. Every call runs under the
// cache retry policy inside the cache circuit breaker.
type Invalidator struct {
	store     keyStore
	namespace string
	scanCount int64
	breaker   *resilience.Breaker
	policy    resilience.Policy
}

// NewInvalidator builds an Invalidator over client.
func NewInvalidator(client keyStore, cfg config.CacheConfig, breaker *resilience.Breaker, policy resilience.Policy) *Invalidator {
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = "cache"
	}
	scanCount := cfg.ScanCount
	if scanCount <= 0 {
		scanCount = 100
	}
	return &Invalidator{
		store:     client,
		namespace: namespace,
		scanCount: scanCount,
		breaker:   breaker,
		policy:    policy,
	}
}

// Match returns the SCAN pattern used for a key prefix.
func (i *Invalidator) Match(pattern string) string {
	return i.store.Key(i.namespace, pattern) + "*"
}

// InvalidatePattern removes every cached key starting with pattern.
func (i *Invalidator) InvalidatePattern(ctx context.Context, pattern string) error {
	_, err := i.Invalidate(ctx, pattern)
	return err
}

// Invalidate is InvalidatePattern that also reports how many keys were removed.
func (i *Invalidator) Invalidate(ctx context.Context, pattern string) (int, error) {
	match := i.Match(pattern)
	op := func(ctx context.Context) (int, error) {
		keys, err := i.store.ScanKeys(ctx, match, i.scanCount)
		if err != nil {
			return 0, err
		}
		for start := 0; start < len(keys); start += delBatchSize {
			end := start + delBatchSize
			if end > len(keys) {
				end = len(keys)
			}
			if err := i.store.Del(ctx, keys[start:end]...); err != nil {
				return start, err
			}
		}
		return len(keys), nil
	}

	var (
		deleted int
		err     error
	)
	if i.breaker != nil {
		deleted, _, err = resilience.Call(ctx, i.breaker, i.policy, op)
	} else {
		deleted, _, err = resilience.Do(ctx, i.policy, op)
	}
	if err != nil && pkgerrors.As(err) == nil && ctx.Err() == nil {
		return deleted, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate cache "+match)
	}
	return deleted, err
}
