package backtest

import (
	"context"

	"options-spread-lab/internal/domain"
)

// Sink receives every trade record as soon as its day is simulated.
type Sink interface {
	OnTrade(ctx context.Context, r *domain.TradeRecord) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, r *domain.TradeRecord) error

// OnTrade calls f(ctx, r).
func (f SinkFunc) OnTrade(ctx context.Context, r *domain.TradeRecord) error {
	return f(ctx, r)
}

// CollectingSink keeps every record it receives. Not safe for concurrent runs.
type CollectingSink struct {
	records []*domain.TradeRecord
}

// OnTrade collects a copy of r.
func (s *CollectingSink) OnTrade(_ context.Context, r *domain.TradeRecord) error {
	s.records = append(s.records, r.Clone())
	return nil
}

// Records returns collected records for verification.
func (s *CollectingSink) Records() []*domain.TradeRecord {
	return s.records
}

var (
	_ Sink = SinkFunc(nil)
	_ Sink = (*CollectingSink)(nil)
)
