package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/observability"
	"options-spread-lab/internal/storage"
)

// TradeRecordStore implements storage.TradeStore using PostgreSQL.
// DATE columns are read back as midnight in loc; timestamps are converted to loc.
type TradeRecordStore struct {
	pool *Pool
	loc  *time.Location
}

// NewTradeRecordStore creates a new TradeRecordStore. A nil loc means UTC.
func NewTradeRecordStore(pool *Pool, loc *time.Location) *TradeRecordStore {
	if loc == nil {
		loc = time.UTC
	}
	return &TradeRecordStore{pool: pool, loc: loc}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeRecordStore)(nil)

const tradeRecordColumns = `
	trade_id, run_id,
	entry_date, next_session_date, underlying, market_direction, option_type, expiry,
	spot_open, spot_entry, lot_size,
	main_strike, main_entry_time, main_entry_signal_price, main_entry_price,
	main_exit_time, main_exit_signal_price, main_exit_price, main_exit_reason,
	main_rolling_extreme, main_pnl, main_pnl_pct,
	hedge_strike, hedge_entry_time, hedge_entry_signal_price, hedge_entry_price,
	hedge_exit_time, hedge_exit_signal_price, hedge_exit_price, hedge_exit_reason,
	hedge_rolling_extreme, hedge_pnl, hedge_pnl_pct,
	realized_pnl, realized_pnl_pct, status, failed_state, failure_kind, failure_reason`

const insertTradeRecordQuery = `
	INSERT INTO trade_records (` + tradeRecordColumns + `
	) VALUES (
		$1, $2,
		$3, $4, $5, $6, $7, $8,
		$9, $10, $11,
		$12, $13, $14, $15,
		$16, $17, $18, $19,
		$20, $21, $22,
		$23, $24, $25, $26,
		$27, $28, $29, $30,
		$31, $32, $33,
		$34, $35, $36, $37, $38, $39
	)`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(ctx context.Context, r *domain.TradeRecord) (err error) {
	if r == nil || r.TradeID == "" || r.RunID == "" {
		return storage.ErrInvalidInput
	}
	defer observeQuery("insert_trade", time.Now(), &err)

	if _, err := s.pool.Exec(ctx, insertTradeRecordQuery, insertArgs(r)...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(ctx context.Context, records []*domain.TradeRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.TradeID == "" || r.RunID == "" {
			return storage.ErrInvalidInput
		}
	}
	defer observeQuery("insert_trade_bulk", time.Now(), &err)

	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		for _, r := range records {
			if _, err := tx.Exec(ctx, insertTradeRecordQuery, insertArgs(r)...); err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert trade record in bulk: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `SELECT ` + tradeRecordColumns + ` FROM trade_records WHERE trade_id = $1`

	r, err := s.scanTradeRecord(s.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record: %w", err)
	}
	return r, nil
}

// GetByRunID retrieves all trades of a run, ordered by entry date ASC.
func (s *TradeRecordStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE run_id = $1
		ORDER BY entry_date ASC, trade_id ASC`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query trade records by run: %w", err)
	}
	defer rows.Close()

	var result []*domain.TradeRecord
	for rows.Next() {
		r, err := s.scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade records: %w", err)
	}
	return result, nil
}

// ListRuns returns every run, ordered by run ID.
func (s *TradeRecordStore) ListRuns(ctx context.Context) ([]storage.RunInfo, error) {
	query := `
		SELECT run_id, count(*), min(entry_date), max(entry_date)
		FROM trade_records
		GROUP BY run_id
		ORDER BY run_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var result []storage.RunInfo
	for rows.Next() {
		var info storage.RunInfo
		var count int64
		if err := rows.Scan(&info.RunID, &count, &info.FirstEntryDate, &info.LastEntryDate); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		info.TradeCount = int(count)
		info.FirstEntryDate = s.date(info.FirstEntryDate)
		info.LastEntryDate = s.date(info.LastEntryDate)
		result = append(result, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func insertArgs(r *domain.TradeRecord) []any {
	var next *time.Time
	if !r.NextSessionDate.IsZero() {
		d := civil(r.NextSessionDate)
		next = &d
	}
	var expiry *time.Time
	if r.Expiry != nil {
		d := civil(*r.Expiry)
		expiry = &d
	}

	return []any{
		r.TradeID, r.RunID,
		civil(r.EntryDate), next, r.Underlying, r.MarketDirection, r.OptionType, expiry,
		r.SpotOpen, r.SpotEntry, r.LotSize,
		r.MainStrike, r.MainEntryTime, r.MainEntrySignalPrice, r.MainEntryPrice,
		r.MainExitTime, r.MainExitSignalPrice, r.MainExitPrice, r.MainExitReason,
		r.MainRollingExtreme, r.MainPnL, r.MainPnLPct,
		r.HedgeStrike, r.HedgeEntryTime, r.HedgeEntrySignalPrice, r.HedgeEntryPrice,
		r.HedgeExitTime, r.HedgeExitSignalPrice, r.HedgeExitPrice, r.HedgeExitReason,
		r.HedgeRollingExtreme, r.HedgePnL, r.HedgePnLPct,
		r.RealizedPnL, r.RealizedPnLPct, r.Status, r.FailedState, r.FailureKind, r.FailureReason,
	}
}

// scanTradeRecord scans a single row into a TradeRecord.
func (s *TradeRecordStore) scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var r domain.TradeRecord
	var next *time.Time
	var lotSize int32

	err := row.Scan(
		&r.TradeID, &r.RunID,
		&r.EntryDate, &next, &r.Underlying, &r.MarketDirection, &r.OptionType, &r.Expiry,
		&r.SpotOpen, &r.SpotEntry, &lotSize,
		&r.MainStrike, &r.MainEntryTime, &r.MainEntrySignalPrice, &r.MainEntryPrice,
		&r.MainExitTime, &r.MainExitSignalPrice, &r.MainExitPrice, &r.MainExitReason,
		&r.MainRollingExtreme, &r.MainPnL, &r.MainPnLPct,
		&r.HedgeStrike, &r.HedgeEntryTime, &r.HedgeEntrySignalPrice, &r.HedgeEntryPrice,
		&r.HedgeExitTime, &r.HedgeExitSignalPrice, &r.HedgeExitPrice, &r.HedgeExitReason,
		&r.HedgeRollingExtreme, &r.HedgePnL, &r.HedgePnLPct,
		&r.RealizedPnL, &r.RealizedPnLPct, &r.Status, &r.FailedState, &r.FailureKind, &r.FailureReason,
	)
	if err != nil {
		return nil, err
	}

	r.LotSize = int(lotSize)
	r.EntryDate = s.date(r.EntryDate)
	if next != nil {
		r.NextSessionDate = s.date(*next)
	}
	if r.Expiry != nil {
		d := s.date(*r.Expiry)
		r.Expiry = &d
	}
	for _, ts := range []*time.Time{
		r.MainEntryTime, r.MainExitTime, r.HedgeEntryTime, r.HedgeExitTime,
	} {
		if ts != nil {
			*ts = ts.In(s.loc)
		}
	}
	return &r, nil
}

// date reinterprets a DATE value as midnight in the store's location.
func (s *TradeRecordStore) date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// civil maps a calendar day to UTC midnight so the DATE encoding ignores the zone offset.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func observeQuery(operation string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), *err)
}
