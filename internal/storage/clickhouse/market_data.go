package clickhouse

import (
	"context"
	"fmt"
	"time"

	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/observability"
	"options-spread-lab/internal/storage"
)

const dayLayout = "2006-01-02"

// MarketData implements storage.MarketDataProvider and storage.TickWriter
// over the spot_ticks and option_ticks tables.
// Ticks are bucketed by their calendar day in loc.
type MarketData struct {
	conn *Conn
	loc  *time.Location
}

// NewMarketData creates a new MarketData. A nil loc means UTC.
func NewMarketData(conn *Conn, loc *time.Location) *MarketData {
	if loc == nil {
		loc = time.UTC
	}
	return &MarketData{conn: conn, loc: loc}
}

// Compile-time interface checks.
var (
	_ storage.MarketDataProvider = (*MarketData)(nil)
	_ storage.TickWriter         = (*MarketData)(nil)
)

// InsertSpotTicks appends spot ticks. Fails entire batch on duplicate timestamp.
func (m *MarketData) InsertSpotTicks(ctx context.Context, underlying string, points []domain.PricePoint) (err error) {
	if underlying == "" {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}
	defer m.observe("insert_spot", time.Now(), &err)

	lo, hi, err := batchBounds(points)
	if err != nil {
		return err
	}
	existing, err := m.timestamps(ctx, `
		SELECT toUnixTimestamp64Milli(ts) FROM spot_ticks
		WHERE underlying = ?
		  AND toUnixTimestamp64Milli(ts) BETWEEN ? AND ?`,
		underlying, lo, hi)
	if err != nil {
		return fmt.Errorf("check existing spot ticks: %w", err)
	}
	if overlaps(existing, points) {
		return storage.ErrDuplicateKey
	}

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO spot_ticks (underlying, trade_date, ts, price)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(underlying, m.day(p.Timestamp), p.Timestamp.UTC(), p.Price); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// InsertOptionTicks appends option ticks. Fails entire batch on duplicate timestamp.
func (m *MarketData) InsertOptionTicks(ctx context.Context, c domain.Contract, points []domain.PricePoint) (err error) {
	if c.Underlying == "" || !c.OptionType.IsValid() || c.Expiry.IsZero() {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}
	defer m.observe("insert_option", time.Now(), &err)

	lo, hi, err := batchBounds(points)
	if err != nil {
		return err
	}
	existing, err := m.timestamps(ctx, `
		SELECT toUnixTimestamp64Milli(ts) FROM option_ticks
		WHERE underlying = ? AND expiry = toDate(?) AND strike = ? AND option_type = ?
		  AND toUnixTimestamp64Milli(ts) BETWEEN ? AND ?`,
		c.Underlying, c.Expiry.Format(dayLayout), c.Strike, string(c.OptionType), lo, hi)
	if err != nil {
		return fmt.Errorf("check existing option ticks: %w", err)
	}
	if overlaps(existing, points) {
		return storage.ErrDuplicateKey
	}

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO option_ticks (underlying, expiry, strike, option_type, trade_date, ts, price)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	expiry := civilUTC(c.Expiry)
	for _, p := range points {
		err := batch.Append(
			c.Underlying, expiry, c.Strike, string(c.OptionType),
			m.day(p.Timestamp), p.Timestamp.UTC(), p.Price,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// TradingDates returns every date with spot data, sorted ascending.
func (m *MarketData) TradingDates(ctx context.Context, underlying string) (_ []time.Time, err error) {
	defer m.observe("trading_dates", time.Now(), &err)

	return m.dates(ctx, `
		SELECT DISTINCT trade_date FROM spot_ticks
		WHERE underlying = ?
		ORDER BY trade_date ASC`,
		underlying)
}

// SpotSeries returns the underlying's ticks for date, ordered by timestamp ASC.
func (m *MarketData) SpotSeries(ctx context.Context, underlying string, date time.Time) (_ domain.Series, err error) {
	defer m.observe("spot_series", time.Now(), &err)

	return m.series(ctx, `
		SELECT ts, price FROM spot_ticks FINAL
		WHERE underlying = ? AND trade_date = toDate(?)
		ORDER BY ts ASC`,
		underlying, date.Format(dayLayout))
}

// OptionSeries returns the contract's ticks for date, ordered by timestamp ASC.
func (m *MarketData) OptionSeries(ctx context.Context, c domain.Contract, date time.Time) (_ domain.Series, err error) {
	defer m.observe("option_series", time.Now(), &err)

	return m.series(ctx, `
		SELECT ts, price FROM option_ticks FINAL
		WHERE underlying = ? AND trade_date = toDate(?)
		  AND expiry = toDate(?) AND strike = ? AND option_type = ?
		ORDER BY ts ASC`,
		c.Underlying, date.Format(dayLayout),
		c.Expiry.Format(dayLayout), c.Strike, string(c.OptionType))
}

// AvailableExpiries returns the expiries quoted on asOf, sorted ascending.
func (m *MarketData) AvailableExpiries(ctx context.Context, underlying string, asOf time.Time) (_ []time.Time, err error) {
	defer m.observe("available_expiries", time.Now(), &err)

	return m.dates(ctx, `
		SELECT DISTINCT expiry FROM option_ticks
		WHERE underlying = ? AND trade_date = toDate(?)
		ORDER BY expiry ASC`,
		underlying, asOf.Format(dayLayout))
}

// AvailableStrikes returns the strikes quoted for expiry on asOf, sorted ascending.
func (m *MarketData) AvailableStrikes(ctx context.Context, underlying string, expiry, asOf time.Time) (_ []float64, err error) {
	defer m.observe("available_strikes", time.Now(), &err)

	rows, err := m.conn.Query(ctx, `
		SELECT DISTINCT strike FROM option_ticks
		WHERE underlying = ? AND trade_date = toDate(?) AND expiry = toDate(?)
		ORDER BY strike ASC`,
		underlying, asOf.Format(dayLayout), expiry.Format(dayLayout))
	if err != nil {
		return nil, fmt.Errorf("query strikes: %w", err)
	}
	defer rows.Close()

	var strikes []float64
	for rows.Next() {
		var strike float64
		if err := rows.Scan(&strike); err != nil {
			return nil, fmt.Errorf("scan strike: %w", err)
		}
		strikes = append(strikes, strike)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strikes: %w", err)
	}
	return strikes, nil
}

func (m *MarketData) series(ctx context.Context, query string, args ...any) (domain.Series, error) {
	rows, err := m.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	series := domain.Series{}
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		p.Timestamp = p.Timestamp.In(m.loc)
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return series, nil
}

func (m *MarketData) dates(ctx context.Context, query string, args ...any) ([]time.Time, error) {
	rows, err := m.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		y, mo, day := d.Date()
		dates = append(dates, time.Date(y, mo, day, 0, 0, 0, 0, m.loc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates: %w", err)
	}
	return dates, nil
}

func (m *MarketData) timestamps(ctx context.Context, query string, args ...any) (map[int64]struct{}, error) {
	rows, err := m.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[int64]struct{})
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, err
		}
		seen[ms] = struct{}{}
	}
	return seen, rows.Err()
}

// day returns the tick's calendar day in the exchange timezone.
func (m *MarketData) day(ts time.Time) time.Time {
	return civilUTC(ts.In(m.loc))
}

func (m *MarketData) observe(operation string, start time.Time, err *error) {
	observability.RecordProviderQuery("clickhouse", operation, time.Since(start).Seconds(), *err)
}

// batchBounds validates a batch and returns its millisecond range.
// Intra-batch duplicates fail the batch.
func batchBounds(points []domain.PricePoint) (lo, hi int64, err error) {
	seen := make(map[int64]struct{}, len(points))
	for i, p := range points {
		if p.Timestamp.IsZero() {
			return 0, 0, storage.ErrInvalidInput
		}
		ms := p.Timestamp.UnixMilli()
		if _, exists := seen[ms]; exists {
			return 0, 0, storage.ErrDuplicateKey
		}
		seen[ms] = struct{}{}
		if i == 0 || ms < lo {
			lo = ms
		}
		if i == 0 || ms > hi {
			hi = ms
		}
	}
	return lo, hi, nil
}

func overlaps(existing map[int64]struct{}, points []domain.PricePoint) bool {
	for _, p := range points {
		if _, ok := existing[p.Timestamp.UnixMilli()]; ok {
			return true
		}
	}
	return false
}

func civilUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
