package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

const (
	lowStockSweepJobName  = "inventory-low-stock-sweep"
	defaultSweepSampleMax = 20
)

type stockReporter interface {
	GetStatusCounts(ctx context.Context) (inventory.StatusCounts, error)
	FindOutOfStock(ctx context.Context, location *string) ([]*inventory.Record, error)
}

type LowStockSweepJobParams struct {
	Logger *logger.Logger
	Ledger stockReporter
	// SampleSize caps how many out-of-stock product ids are logged.
	SampleSize int
}

func NewLowStockSweepJob(params LowStockSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	sample := params.SampleSize
	if sample <= 0 {
		sample = defaultSweepSampleMax
	}
	return &lowStockSweepJob{logg: params.Logger, ledger: params.Ledger, sample: sample}, nil
}

type lowStockSweepJob struct {
	logg   *logger.Logger
	ledger stockReporter
	sample int
}

func (j *lowStockSweepJob) Name() string { return lowStockSweepJobName }

// Run refreshes the stock level gauges and reports out-of-stock products.
func (j *lowStockSweepJob) Run(ctx context.Context) error {
	counts, err := j.ledger.GetStatusCounts(ctx)
	if err != nil {
		return fmt.Errorf("status counts: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"sufficient":   counts.Sufficient,
		"low_stock":    counts.LowStock,
		"out_of_stock": counts.OutOfStock,
		"total":        counts.Total,
	})
	if counts.OutOfStock == 0 {
		j.logg.Info(logCtx, "stock sweep complete")
		return nil
	}

	records, err := j.ledger.FindOutOfStock(ctx, nil)
	if err != nil {
		return fmt.Errorf("find out of stock: %w", err)
	}
	ids := make([]string, 0, j.sample)
	for _, record := range records {
		if len(ids) == j.sample {
			break
		}
		ids = append(ids, record.ProductID.String())
	}
	j.logg.Warn(j.logg.WithField(logCtx, "product_ids", ids), "products out of stock")
	return nil
}
