// Package sqlite reads tick data stored one table per trading day, the layout
// produced by the upstream data vendor: OPT.db and SPOT.db each hold tables
// named DDMMYYYY. Spot tables carry (time, close); option tables add strike,
// instrument_type and expiry. The files carry no underlying column, so one
// MarketData serves a single underlying.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/observability"
	"options-spread-lab/internal/storage"
)

// TableLayout is the per-day table name format.
const TableLayout = "02012006"

const expiryLayout = "2006-01-02"

// expiryLayouts are the expiry encodings seen in vendor files.
var expiryLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02-01-2006",
	"02Jan2006",
	"02-Jan-2006",
	"02Jan06",
	"02-Jan-06",
	"02/01/2006",
}

var clockLayouts = []string{"15:04:05", "15:04"}

type spotRow struct {
	Time  string  `gorm:"column:time"`
	Close float64 `gorm:"column:close"`
}

type optionRow struct {
	Time           string  `gorm:"column:time"`
	Close          float64 `gorm:"column:close"`
	Strike         float64 `gorm:"column:strike"`
	InstrumentType string  `gorm:"column:instrument_type"`
	Expiry         string  `gorm:"column:expiry"`
}

// MarketData implements storage.MarketDataProvider and storage.TickWriter
// over a pair of per-day SQLite databases.
type MarketData struct {
	options    *gorm.DB
	spot       *gorm.DB
	underlying string
	loc        *time.Location
}

// Compile-time interface checks.
var (
	_ storage.MarketDataProvider = (*MarketData)(nil)
	_ storage.TickWriter         = (*MarketData)(nil)
)

// Open opens the options and spot databases, creating parent directories
// for new files. A nil loc means UTC.
func Open(optionsPath, spotPath, underlying string, loc *time.Location) (*MarketData, error) {
	options, err := openDB(optionsPath)
	if err != nil {
		return nil, fmt.Errorf("open options db: %w", err)
	}
	spot, err := openDB(spotPath)
	if err != nil {
		closeDB(options)
		return nil, fmt.Errorf("open spot db: %w", err)
	}
	return New(options, spot, underlying, loc), nil
}

// New wraps already opened databases.
func New(options, spot *gorm.DB, underlying string, loc *time.Location) *MarketData {
	if loc == nil {
		loc = time.UTC
	}
	return &MarketData{options: options, spot: spot, underlying: underlying, loc: loc}
}

func openDB(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// hasTable reports whether the day table exists, honouring ctx.
func hasTable(ctx context.Context, db *gorm.DB, table string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).
		Scan(&n).Error
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return n > 0, nil
}

// Close closes both databases.
func (m *MarketData) Close() error {
	errOpt := closeDB(m.options)
	errSpot := closeDB(m.spot)
	if errOpt != nil {
		return errOpt
	}
	return errSpot
}

// TradingDates returns every date with a spot table, sorted ascending.
// Tables whose names are not DDMMYYYY dates are ignored.
func (m *MarketData) TradingDates(ctx context.Context, underlying string) (_ []time.Time, err error) {
	defer observe("trading_dates", time.Now(), &err)
	if underlying != m.underlying {
		return nil, nil
	}

	tables, err := m.spot.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("list spot tables: %w", err)
	}

	var dates []time.Time
	for _, name := range tables {
		d, err := time.ParseInLocation(TableLayout, name, m.loc)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// SpotSeries returns the underlying's ticks for date, ordered by timestamp ASC.
func (m *MarketData) SpotSeries(ctx context.Context, underlying string, date time.Time) (_ domain.Series, err error) {
	defer observe("spot_series", time.Now(), &err)

	if underlying != m.underlying {
		return domain.Series{}, nil
	}
	table := tableName(date)
	if ok, err := hasTable(ctx, m.spot, table); err != nil || !ok {
		return domain.Series{}, err
	}

	var rows []spotRow
	err = m.spot.WithContext(ctx).Table(table).
		Select("time, close").
		Order("time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query spot %s: %w", table, err)
	}

	series := make(domain.Series, 0, len(rows))
	for _, r := range rows {
		ts, err := m.timestamp(date, r.Time)
		if err != nil {
			return nil, fmt.Errorf("spot %s: %w", table, err)
		}
		series = append(series, domain.PricePoint{Timestamp: ts, Price: r.Close})
	}
	return series, nil
}

// OptionSeries returns the contract's ticks for date, ordered by timestamp ASC.
func (m *MarketData) OptionSeries(ctx context.Context, c domain.Contract, date time.Time) (_ domain.Series, err error) {
	defer observe("option_series", time.Now(), &err)

	if c.Underlying != m.underlying {
		return domain.Series{}, nil
	}
	table := tableName(date)
	if ok, err := hasTable(ctx, m.options, table); err != nil || !ok {
		return domain.Series{}, err
	}

	var rows []optionRow
	err = m.options.WithContext(ctx).Table(table).
		Where("strike = ? AND instrument_type = ?", c.Strike, string(c.OptionType)).
		Order("time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query options %s: %w", table, err)
	}

	want := c.Expiry.Format(expiryLayout)
	series := domain.Series{}
	for _, r := range rows {
		exp, err := parseExpiry(r.Expiry)
		if err != nil || exp.Format(expiryLayout) != want {
			continue
		}
		ts, err := m.timestamp(date, r.Time)
		if err != nil {
			return nil, fmt.Errorf("options %s: %w", table, err)
		}
		series = append(series, domain.PricePoint{Timestamp: ts, Price: r.Close})
	}
	return series, nil
}

// AvailableExpiries returns the expiries quoted on asOf, sorted ascending.
// Unparseable expiry values are skipped.
func (m *MarketData) AvailableExpiries(ctx context.Context, underlying string, asOf time.Time) (_ []time.Time, err error) {
	defer observe("available_expiries", time.Now(), &err)

	if underlying != m.underlying {
		return nil, nil
	}
	table := tableName(asOf)
	if ok, err := hasTable(ctx, m.options, table); err != nil || !ok {
		return nil, err
	}

	var raw []string
	if err := m.options.WithContext(ctx).Table(table).Distinct("expiry").Pluck("expiry", &raw).Error; err != nil {
		return nil, fmt.Errorf("query expiries %s: %w", table, err)
	}

	seen := make(map[string]struct{})
	var expiries []time.Time
	for _, v := range raw {
		exp, err := parseExpiry(v)
		if err != nil {
			continue
		}
		key := exp.Format(expiryLayout)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		expiries = append(expiries, time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, m.loc))
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries, nil
}

// AvailableStrikes returns the strikes quoted for expiry on asOf, sorted ascending.
func (m *MarketData) AvailableStrikes(ctx context.Context, underlying string, expiry, asOf time.Time) (_ []float64, err error) {
	defer observe("available_strikes", time.Now(), &err)

	if underlying != m.underlying {
		return nil, nil
	}
	table := tableName(asOf)
	if ok, err := hasTable(ctx, m.options, table); err != nil || !ok {
		return nil, err
	}

	var rows []optionRow
	err = m.options.WithContext(ctx).Table(table).
		Distinct("strike", "expiry").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query strikes %s: %w", table, err)
	}

	want := expiry.Format(expiryLayout)
	seen := make(map[float64]struct{})
	var strikes []float64
	for _, r := range rows {
		exp, err := parseExpiry(r.Expiry)
		if err != nil || exp.Format(expiryLayout) != want {
			continue
		}
		if _, dup := seen[r.Strike]; dup {
			continue
		}
		seen[r.Strike] = struct{}{}
		strikes = append(strikes, r.Strike)
	}
	sort.Float64s(strikes)
	return strikes, nil
}

// InsertSpotTicks appends spot ticks to their day tables, creating tables as
// needed. Fails entire batch on duplicate time of day.
func (m *MarketData) InsertSpotTicks(ctx context.Context, underlying string, points []domain.PricePoint) (err error) {
	if underlying == "" || underlying != m.underlying {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}
	defer observe("insert_spot", time.Now(), &err)

	byTable, err := m.groupByDay(points)
	if err != nil {
		return err
	}

	return m.spot.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for table, pts := range byTable {
			if err := tx.Exec(`CREATE TABLE IF NOT EXISTS "` + table + `" (time TEXT NOT NULL, close REAL NOT NULL)`).Error; err != nil {
				return fmt.Errorf("create spot table %s: %w", table, err)
			}
			if err := checkExisting(tx.Table(table), pts); err != nil {
				return err
			}
			rows := make([]spotRow, len(pts))
			for i, p := range pts {
				rows[i] = spotRow{Time: p.Timestamp.Format(clockLayouts[0]), Close: p.Price}
			}
			if err := tx.Table(table).Create(&rows).Error; err != nil {
				return fmt.Errorf("insert spot ticks %s: %w", table, err)
			}
		}
		return nil
	})
}

// InsertOptionTicks appends option ticks to their day tables, creating tables
// as needed. Fails entire batch on duplicate time of day for the contract.
func (m *MarketData) InsertOptionTicks(ctx context.Context, c domain.Contract, points []domain.PricePoint) (err error) {
	if c.Underlying != m.underlying || !c.OptionType.IsValid() || c.Expiry.IsZero() {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}
	defer observe("insert_option", time.Now(), &err)

	byTable, err := m.groupByDay(points)
	if err != nil {
		return err
	}

	expiry := c.Expiry.Format(expiryLayout)
	return m.options.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for table, pts := range byTable {
			ddl := `CREATE TABLE IF NOT EXISTS "` + table + `" (
				time TEXT NOT NULL,
				close REAL NOT NULL,
				strike REAL NOT NULL,
				instrument_type TEXT NOT NULL,
				expiry TEXT NOT NULL
			)`
			if err := tx.Exec(ddl).Error; err != nil {
				return fmt.Errorf("create option table %s: %w", table, err)
			}
			scope := tx.Table(table).Where("strike = ? AND instrument_type = ? AND expiry = ?",
				c.Strike, string(c.OptionType), expiry)
			if err := checkExisting(scope, pts); err != nil {
				return err
			}
			rows := make([]optionRow, len(pts))
			for i, p := range pts {
				rows[i] = optionRow{
					Time:           p.Timestamp.Format(clockLayouts[0]),
					Close:          p.Price,
					Strike:         c.Strike,
					InstrumentType: string(c.OptionType),
					Expiry:         expiry,
				}
			}
			if err := tx.Table(table).Create(&rows).Error; err != nil {
				return fmt.Errorf("insert option ticks %s: %w", table, err)
			}
		}
		return nil
	})
}

// groupByDay splits a batch by day table. Ticks are reduced to whole seconds,
// so two ticks in the same second are duplicates.
func (m *MarketData) groupByDay(points []domain.PricePoint) (map[string][]domain.PricePoint, error) {
	byTable := make(map[string][]domain.PricePoint)
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		if p.Timestamp.IsZero() {
			return nil, storage.ErrInvalidInput
		}
		ts := p.Timestamp.In(m.loc)
		table := tableName(ts)
		key := table + " " + ts.Format(clockLayouts[0])
		if _, dup := seen[key]; dup {
			return nil, storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
		byTable[table] = append(byTable[table], domain.PricePoint{Timestamp: ts, Price: p.Price})
	}
	return byTable, nil
}

func checkExisting(scope *gorm.DB, points []domain.PricePoint) error {
	times := make([]string, len(points))
	for i, p := range points {
		times[i] = p.Timestamp.Format(clockLayouts[0])
	}
	var count int64
	if err := scope.Where("time IN ?", times).Count(&count).Error; err != nil {
		return fmt.Errorf("check existing ticks: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// timestamp combines a day with a vendor time-of-day string.
func (m *MarketData) timestamp(date time.Time, clock string) (time.Time, error) {
	clock = strings.TrimSpace(clock)
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, clock)
		if err == nil {
			return time.Date(date.Year(), date.Month(), date.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, m.loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", clock)
}

func parseExpiry(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable expiry %q", v)
}

func tableName(date time.Time) string {
	return date.Format(TableLayout)
}

func observe(operation string, start time.Time, err *error) {
	observability.RecordProviderQuery("sqlite", operation, time.Since(start).Seconds(), *err)
}
