package metrics

import (
	"context"
	"errors"
	"fmt"

	"options-spread-lab/internal/storage"
)

// ErrNoTrades is returned when a run has no trade records.
var ErrNoTrades = errors.New("no trades available for aggregation")

// Aggregator computes run summaries from a trade store.
type Aggregator struct {
	store storage.TradeStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(store storage.TradeStore) *Aggregator {
	return &Aggregator{store: store}
}

// ComputeRun loads the run's trades and summarizes them.
// Returns ErrNoTrades if the run has no records.
func (a *Aggregator) ComputeRun(ctx context.Context, runID string) (*Summary, error) {
	records, err := a.store.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades for run %s: %w", runID, err)
	}
	if len(records) == 0 {
		return nil, ErrNoTrades
	}
	return Compute(runID, records), nil
}
