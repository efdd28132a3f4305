package storage

import (
	"context"
	"time"

	"options-spread-lab/internal/domain"
)

// MarketDataProvider exposes time-ordered spot and option ticks per trading date.
// Dates are calendar days; only the year, month and day are significant.
// An empty series is a valid result, not an error: absence of data is reported
// by the caller, not the provider.
type MarketDataProvider interface {
	// TradingDates returns every date with spot data, sorted ascending.
	TradingDates(ctx context.Context, underlying string) ([]time.Time, error)

	// SpotSeries returns the underlying's ticks for date, ordered by timestamp ASC.
	SpotSeries(ctx context.Context, underlying string, date time.Time) (domain.Series, error)

	// OptionSeries returns the contract's ticks for date, ordered by timestamp ASC.
	OptionSeries(ctx context.Context, c domain.Contract, date time.Time) (domain.Series, error)

	// AvailableExpiries returns the expiries quoted on asOf, sorted ascending.
	AvailableExpiries(ctx context.Context, underlying string, asOf time.Time) ([]time.Time, error)

	// AvailableStrikes returns the strikes quoted for expiry on asOf, sorted ascending.
	AvailableStrikes(ctx context.Context, underlying string, expiry, asOf time.Time) ([]float64, error)
}

// TickWriter loads ticks into a market data store.
type TickWriter interface {
	// InsertSpotTicks appends spot ticks. Fails entire batch on duplicate timestamp.
	InsertSpotTicks(ctx context.Context, underlying string, points []domain.PricePoint) error

	// InsertOptionTicks appends option ticks. Fails entire batch on duplicate timestamp.
	InsertOptionTicks(ctx context.Context, c domain.Contract, points []domain.PricePoint) error
}

// RunInfo summarizes one backtest run in a TradeStore.
type RunInfo struct {
	RunID          string
	TradeCount     int
	FirstEntryDate time.Time
	LastEntryDate  time.Time
}

// TradeStore provides access to trade_records storage.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, r *domain.TradeRecord) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByRunID retrieves all trades of a run, ordered by entry date ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error)

	// ListRuns returns every run, ordered by run ID.
	ListRuns(ctx context.Context) ([]RunInfo, error)
}
