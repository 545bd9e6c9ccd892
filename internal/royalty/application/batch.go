package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"royalty-engine/internal/observability/metrics"
	royalty "royalty-engine/internal/royalty/domain"
)

// CalculateBatch calculates plays on a bounded worker pool against one rate
// snapshot. Results keep input order and one failing play never aborts the batch.
func (c *Calculator) CalculateBatch(ctx context.Context, plays []royalty.PlayLog) royalty.BatchResult {
	start := time.Now()
	calc := c
	if snap, err := c.Snapshot(ctx); err != nil {
		c.logger.Warn("rate snapshot failed, using live lookups",
			zap.String("event", "batch.snapshot"),
			zap.Error(err),
		)
	} else {
		calc = snap
	}

	results := make([]royalty.CalculationResult, len(plays))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(c.workers)
	for i := range plays {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = royalty.CalculationResult{
					PlayLogID:   plays[i].ID,
					GrossAmount: decimal.Zero,
					Currency:    c.currency,
					Errors:      []error{err},
				}
				return nil
			}
			results[i] = calc.CalculateForPlay(gctx, plays[i])
			return nil
		})
	}
	_ = group.Wait()

	batch := summarize(results, c.currency)
	status := metrics.ResultSuccess
	if len(batch.Errors) > 0 {
		status = metrics.ResultError
	}
	metrics.ObserveBatch(status, time.Since(start), batch.SuccessfulCalculations, len(batch.Errors))
	c.logger.Info("batch calculated",
		zap.String("event", "batch.calculate"),
		zap.Int("plays", len(plays)),
		zap.Int("succeeded", batch.SuccessfulCalculations),
		zap.Int("failed", len(batch.Errors)),
		zap.String("total", batch.TotalAmount.StringFixed(royalty.MinorUnits(c.currency))),
	)
	return batch
}

func summarize(results []royalty.CalculationResult, currency string) royalty.BatchResult {
	batch := royalty.BatchResult{
		Results:     results,
		TotalAmount: decimal.Zero,
		Currency:    currency,
	}
	for _, result := range results {
		if !result.OK() {
			batch.Errors = append(batch.Errors, royalty.PlayError{
				PlayLogID: result.PlayLogID,
				Err:       errors.Join(result.Errors...),
			})
			continue
		}
		batch.SuccessfulCalculations++
		batch.TotalAmount = batch.TotalAmount.Add(result.GrossAmount)
	}
	return batch
}
