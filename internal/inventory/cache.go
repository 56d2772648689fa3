package inventory

import "context"

// CacheInvalidator drops cached projections whose keys start with pattern.
type CacheInvalidator interface {
	InvalidatePattern(ctx context.Context, pattern string) error
}

// allInventoryKeys matches every cached inventory projection.
const allInventoryKeys = "inventory:"
