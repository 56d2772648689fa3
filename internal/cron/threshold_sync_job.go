package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/stockledger/pkg/logger"
)

const (
	thresholdSyncJobName       = "inventory-threshold-sync"
	defaultThresholdSyncWorker = 4
)

type thresholdUpdater interface {
	UpdateLowStockThresholdBatch(ctx context.Context, location string, threshold int) (int64, error)
}

type ThresholdSyncJobParams struct {
	Logger *logger.Logger
	Ledger thresholdUpdater
	// Thresholds maps location to the low stock threshold it should carry.
	Thresholds  map[string]int
	Concurrency int
}

// NewThresholdSyncJob builds the job applying configured per-location
// thresholds. Every location is attempted; failures are reported together.
func NewThresholdSyncJob(params ThresholdSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultThresholdSyncWorker
	}
	thresholds := make(map[string]int, len(params.Thresholds))
	for location, threshold := range params.Thresholds {
		thresholds[location] = threshold
	}
	return &thresholdSyncJob{
		logg:        params.Logger,
		ledger:      params.Ledger,
		thresholds:  thresholds,
		concurrency: concurrency,
	}, nil
}

type thresholdSyncJob struct {
	logg        *logger.Logger
	ledger      thresholdUpdater
	thresholds  map[string]int
	concurrency int
}

func (j *thresholdSyncJob) Name() string { return thresholdSyncJobName }

func (j *thresholdSyncJob) Run(ctx context.Context) error {
	if len(j.thresholds) == 0 {
		j.logg.Debug(ctx, "no location thresholds configured")
		return nil
	}
	locations := make([]string, 0, len(j.thresholds))
	for location := range j.thresholds {
		locations = append(locations, location)
	}
	sort.Strings(locations)

	var (
		mu      sync.Mutex
		errs    error
		updated int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for _, location := range locations {
		location := location
		threshold := j.thresholds[location]
		g.Go(func() error {
			rows, err := j.ledger.UpdateLowStockThresholdBatch(gctx, location, threshold)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("location %s: %w", location, err))
				return nil
			}
			updated += rows
			return nil
		})
	}
	_ = g.Wait()

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"locations":    len(locations),
		"rows_updated": updated,
		"failures":     len(multierr.Errors(errs)),
	})
	if errs != nil {
		return fmt.Errorf("threshold sync: %w", errs)
	}
	j.logg.Info(logCtx, "low stock thresholds synced")
	return nil
}
