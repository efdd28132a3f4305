package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/storage"
)

const dayLayout = "2006-01-02"

// contractKey identifies an option contract by calendar expiry.
type contractKey struct {
	underlying string
	strike     float64
	optionType domain.OptionType
	expiry     string
}

func keyOf(c domain.Contract) contractKey {
	return contractKey{
		underlying: c.Underlying,
		strike:     c.Strike,
		optionType: c.OptionType,
		expiry:     c.Expiry.Format(dayLayout),
	}
}

// daySeries is one calendar day of ticks, kept sorted by timestamp.
type daySeries struct {
	date   time.Time
	points domain.Series
	seen   map[int64]struct{} // unix nanos, for duplicate detection
}

// MarketData is an in-memory implementation of storage.MarketDataProvider
// and storage.TickWriter.
//
// Ticks are bucketed by their calendar day in the store's location (UTC
// unless set with WithLocation). Query dates are calendar days: only their
// year, month and day are used, whatever their zone.
type MarketData struct {
	loc     *time.Location
	mu      sync.RWMutex
	spot    map[string]map[string]*daySeries      // underlying -> day -> ticks
	options map[contractKey]map[string]*daySeries // contract -> day -> ticks
	expiry  map[contractKey]domain.Contract
}

// NewMarketData creates a new in-memory market data store.
func NewMarketData() *MarketData {
	return &MarketData{
		loc:     time.UTC,
		spot:    make(map[string]map[string]*daySeries),
		options: make(map[contractKey]map[string]*daySeries),
		expiry:  make(map[contractKey]domain.Contract),
	}
}

// WithLocation sets the exchange location used to bucket ticks by day.
// Call it before inserting ticks.
func (m *MarketData) WithLocation(loc *time.Location) *MarketData {
	if loc != nil {
		m.loc = loc
	}
	return m
}

// InsertSpotTicks appends spot ticks. Fails entire batch on duplicate timestamp.
func (m *MarketData) InsertSpotTicks(_ context.Context, underlying string, points []domain.PricePoint) error {
	if underlying == "" {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	days, ok := m.spot[underlying]
	if !ok {
		days = make(map[string]*daySeries)
		m.spot[underlying] = days
	}
	return insertTicks(days, points, m.loc)
}

// InsertOptionTicks appends option ticks. Fails entire batch on duplicate timestamp.
func (m *MarketData) InsertOptionTicks(_ context.Context, c domain.Contract, points []domain.PricePoint) error {
	if c.Underlying == "" || !c.OptionType.IsValid() || c.Expiry.IsZero() {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyOf(c)
	days, ok := m.options[key]
	if !ok {
		days = make(map[string]*daySeries)
		m.options[key] = days
		m.expiry[key] = c
	}
	return insertTicks(days, points, m.loc)
}

// insertTicks validates the whole batch before mutating days.
func insertTicks(days map[string]*daySeries, points []domain.PricePoint, loc *time.Location) error {
	batch := make(map[int64]struct{}, len(points))
	for _, p := range points {
		if p.Timestamp.IsZero() {
			return storage.ErrInvalidInput
		}
		ns := p.Timestamp.UnixNano()
		if ds, ok := days[p.Timestamp.In(loc).Format(dayLayout)]; ok {
			if _, exists := ds.seen[ns]; exists {
				return storage.ErrDuplicateKey
			}
		}
		if _, exists := batch[ns]; exists {
			return storage.ErrDuplicateKey
		}
		batch[ns] = struct{}{}
	}

	touched := make(map[*daySeries]struct{})
	for _, p := range points {
		local := p.Timestamp.In(loc)
		key := local.Format(dayLayout)
		ds, ok := days[key]
		if !ok {
			y, mo, d := local.Date()
			ds = &daySeries{
				date: time.Date(y, mo, d, 0, 0, 0, 0, loc),
				seen: make(map[int64]struct{}),
			}
			days[key] = ds
		}
		ds.points = append(ds.points, p)
		ds.seen[p.Timestamp.UnixNano()] = struct{}{}
		touched[ds] = struct{}{}
	}
	for ds := range touched {
		sort.Slice(ds.points, func(i, j int) bool {
			return ds.points[i].Timestamp.Before(ds.points[j].Timestamp)
		})
	}
	return nil
}

// TradingDates returns every date with spot data, sorted ascending.
func (m *MarketData) TradingDates(_ context.Context, underlying string) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	days := m.spot[underlying]
	result := make([]time.Time, 0, len(days))
	for _, ds := range days {
		result = append(result, ds.date)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

// SpotSeries returns the underlying's ticks for date, ordered by timestamp ASC.
func (m *MarketData) SpotSeries(_ context.Context, underlying string, date time.Time) (domain.Series, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return copySeries(m.spot[underlying][date.Format(dayLayout)]), nil
}

// OptionSeries returns the contract's ticks for date, ordered by timestamp ASC.
func (m *MarketData) OptionSeries(_ context.Context, c domain.Contract, date time.Time) (domain.Series, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return copySeries(m.options[keyOf(c)][date.Format(dayLayout)]), nil
}

// AvailableExpiries returns the expiries quoted on asOf, sorted ascending.
func (m *MarketData) AvailableExpiries(_ context.Context, underlying string, asOf time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := asOf.Format(dayLayout)
	seen := make(map[string]struct{})
	var result []time.Time
	for key, days := range m.options {
		if key.underlying != underlying {
			continue
		}
		if _, quoted := days[day]; !quoted {
			continue
		}
		if _, dup := seen[key.expiry]; dup {
			continue
		}
		seen[key.expiry] = struct{}{}
		result = append(result, m.expiry[key].Expiry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

// AvailableStrikes returns the strikes quoted for expiry on asOf, sorted ascending.
func (m *MarketData) AvailableStrikes(_ context.Context, underlying string, expiry, asOf time.Time) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := asOf.Format(dayLayout)
	exp := expiry.Format(dayLayout)
	seen := make(map[float64]struct{})
	var result []float64
	for key, days := range m.options {
		if key.underlying != underlying || key.expiry != exp {
			continue
		}
		if _, quoted := days[day]; !quoted {
			continue
		}
		if _, dup := seen[key.strike]; dup {
			continue
		}
		seen[key.strike] = struct{}{}
		result = append(result, key.strike)
	}
	sort.Float64s(result)
	return result, nil
}

func copySeries(ds *daySeries) domain.Series {
	if ds == nil || len(ds.points) == 0 {
		return domain.Series{}
	}
	out := make(domain.Series, len(ds.points))
	copy(out, ds.points)
	return out
}

var (
	_ storage.MarketDataProvider = (*MarketData)(nil)
	_ storage.TickWriter         = (*MarketData)(nil)
)
