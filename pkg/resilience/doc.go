// Package resilience provides the retry and circuit-breaker primitives every
// storage and cache call is routed through.
//
// Policies retry with capped exponential backoff, gated by a per-preset
// retryability predicate:
//
//	record, outcome, err := resilience.Do(ctx, resilience.ForDatabase(), func(ctx context.Context) (*Record, error) {
//	    return repo.FindByProductID(ctx, productID)
//	})
//
// Breakers are kept per resource name in a Registry and short-circuit with a
// CIRCUIT_OPEN error while a dependency is presumed unhealthy. Call composes the
// two so that an exhausted retry sequence counts as one breaker failure.
package resilience
