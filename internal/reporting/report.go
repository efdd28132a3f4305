package reporting

import (
	"time"

	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/metrics"
)

// Report represents one backtest run's report.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	ConfigHash  string

	// Input parameters, in display order
	Parameters []config.Parameter

	// Run summary (counts, PnL distribution, period totals)
	Summary *metrics.Summary

	// Trades sorted by entry date
	Trades []*domain.TradeRecord

	// Failures lists every FAILED trade with its reason
	Failures []FailureRow
}

// FailureRow describes one FAILED trade.
type FailureRow struct {
	EntryDate time.Time
	Kind      string
	State     string
	Reason    string
}
