// Package fixtures generates deterministic synthetic market sessions
// for demos and end-to-end tests.
package fixtures

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/storage"
)

// Config controls synthetic session generation.
type Config struct {
	Underlying      string
	Location        *time.Location
	StartSpot       float64
	StrikeStep      float64
	StrikesEachSide int // strikes quoted on each side of the previous close
	Expiries        int // weekly expiries quoted per session
	ExpiryWeekday   time.Weekday
	SessionOpen     config.ClockTime
	SessionClose    config.ClockTime
	Interval        time.Duration
	Seed            uint64
}

// DefaultConfig returns a BANKNIFTY-like session shape.
func DefaultConfig() Config {
	strat := config.DefaultStrategyConfig()
	return Config{
		Underlying:      strat.Underlying,
		Location:        strat.Location(),
		StartSpot:       45000,
		StrikeStep:      100,
		StrikesEachSide: 20,
		Expiries:        2,
		ExpiryWeekday:   time.Thursday,
		SessionOpen:     config.MustClock("09:15"),
		SessionClose:    config.MustClock("15:30"),
		Interval:        time.Minute,
		Seed:            42,
	}
}

// Session is one synthetic trading day.
type Session struct {
	Date    time.Time
	Spot    domain.Series
	Options map[domain.Contract]domain.Series
}

// Weekdays returns every Monday-Friday date in [from, to].
func Weekdays(from, to time.Time, loc *time.Location) []time.Time {
	var out []time.Time
	y, m, d := from.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	ty, tm, td := to.Date()
	last := time.Date(ty, tm, td, 0, 0, 0, 0, loc)
	for !day.After(last) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// Sessions builds one session per date. Each session opens near the
// previous close, so the output depends only on cfg and dates.
func Sessions(cfg Config, dates []time.Time) []*Session {
	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	out := make([]*Session, 0, len(sorted))
	prevClose := cfg.StartSpot
	for i, date := range sorted {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
		s := buildSession(cfg, rng, date, prevClose)
		prevClose = s.Spot.Last().Price
		out = append(out, s)
	}
	return out
}

func buildSession(cfg Config, rng *rand.Rand, date time.Time, prevClose float64) *Session {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, cfg.Location)
	open := cfg.SessionOpen.On(day, cfg.Location)
	end := cfg.SessionClose.On(day, cfg.Location)

	spot := prevClose * (1 + rng.NormFloat64()*0.003)
	var spotSeries domain.Series
	for ts := open; !ts.After(end); ts = ts.Add(cfg.Interval) {
		spotSeries = append(spotSeries, domain.PricePoint{Timestamp: ts, Price: roundTick(spot)})
		spot *= 1 + rng.NormFloat64()*0.0007
	}

	center := math.Round(prevClose/cfg.StrikeStep) * cfg.StrikeStep
	options := make(map[domain.Contract]domain.Series)
	for _, expiry := range upcomingExpiries(day, cfg.ExpiryWeekday, cfg.Expiries) {
		dte := expiry.Sub(day).Hours() / 24
		for k := -cfg.StrikesEachSide; k <= cfg.StrikesEachSide; k++ {
			strike := center + float64(k)*cfg.StrikeStep
			for _, ot := range []domain.OptionType{domain.OptionTypePut, domain.OptionTypeCall} {
				c := domain.Contract{Underlying: cfg.Underlying, Strike: strike, OptionType: ot, Expiry: expiry}
				series := make(domain.Series, 0, len(spotSeries))
				for _, p := range spotSeries {
					noise := 1 + rng.NormFloat64()*0.01
					series = append(series, domain.PricePoint{
						Timestamp: p.Timestamp,
						Price:     optionPrice(p.Price, strike, ot, dte, noise),
					})
				}
				options[c] = series
			}
		}
	}

	return &Session{Date: day, Spot: spotSeries, Options: options}
}

// upcomingExpiries returns the next n weekly expiries on or after day.
func upcomingExpiries(day time.Time, wd time.Weekday, n int) []time.Time {
	offset := (int(wd) - int(day.Weekday()) + 7) % 7
	first := day.AddDate(0, 0, offset)
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, first.AddDate(0, 0, 7*i))
	}
	return out
}

// optionPrice is intrinsic value plus a bell-shaped time value.
func optionPrice(spot, strike float64, ot domain.OptionType, dte, noise float64) float64 {
	var intrinsic float64
	if ot == domain.OptionTypePut {
		intrinsic = math.Max(strike-spot, 0)
	} else {
		intrinsic = math.Max(spot-strike, 0)
	}
	width := spot * 0.015
	moneyness := (strike - spot) / width
	timeValue := spot * 0.004 * math.Sqrt(dte+0.25) * math.Exp(-moneyness*moneyness/2)
	return math.Max(roundTick(intrinsic+timeValue*noise), 0.05)
}

func roundTick(p float64) float64 {
	return math.Round(p*20) / 20
}

// Load writes sessions into w.
func Load(ctx context.Context, w storage.TickWriter, underlying string, sessions []*Session) error {
	for _, s := range sessions {
		if err := w.InsertSpotTicks(ctx, underlying, s.Spot); err != nil {
			return fmt.Errorf("load spot %s: %w", s.Date.Format("2006-01-02"), err)
		}
		for c, series := range s.Options {
			if err := w.InsertOptionTicks(ctx, c, series); err != nil {
				return fmt.Errorf("load %s on %s: %w", c, s.Date.Format("2006-01-02"), err)
			}
		}
	}
	return nil
}

// Populate generates weekday sessions in [from, to] and loads them into w.
func Populate(ctx context.Context, w storage.TickWriter, cfg Config, from, to time.Time) ([]*Session, error) {
	sessions := Sessions(cfg, Weekdays(from, to, cfg.Location))
	if err := Load(ctx, w, cfg.Underlying, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
