// Package quality checks market-data coverage before a backtest.
package quality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/lookup"
	"options-spread-lab/internal/selection"
	"options-spread-lab/internal/storage"
)

// DefaultMinSpotTicks is the minimum spot ticks for a full session (~375 expected).
const DefaultMinSpotTicks = 300

// DateReport describes one trading date's coverage.
type DateReport struct {
	Date            time.Time
	SpotTicks       int
	FirstTick       time.Time
	LastTick        time.Time
	HasAnalysisTick bool // spot tick between analysis start and decision time
	HasDecisionTick bool // fresh spot tick at decision time
	Expiries        int
	Expiry          *time.Time // expiry the strategy would select
	Strikes         int        // strikes quoted for Expiry
	Issues          []string
}

// OK reports whether the date has no issues.
func (r DateReport) OK() bool {
	return len(r.Issues) == 0
}

// Report is the result of a Check.
type Report struct {
	Underlying   string
	MinSpotTicks int
	Dates        []DateReport
	Flagged      int
}

// ContractReport describes one contract's coverage on a date.
type ContractReport struct {
	Contract    domain.Contract
	Date        time.Time
	TotalTicks  int
	WindowTicks int // ticks at or before the exit window end
	FirstTick   time.Time
	LastTick    time.Time
}

// Checker inspects a market data provider.
type Checker struct {
	provider     storage.MarketDataProvider
	cfg          config.StrategyConfig
	minSpotTicks int
}

// NewChecker creates a new checker.
func NewChecker(provider storage.MarketDataProvider, cfg config.StrategyConfig) *Checker {
	return &Checker{
		provider:     provider,
		cfg:          cfg,
		minSpotTicks: DefaultMinSpotTicks,
	}
}

// WithMinSpotTicks overrides the spot tick threshold.
func (c *Checker) WithMinSpotTicks(n int) *Checker {
	c.minSpotTicks = n
	return c
}

// Check inspects dates, or every trading date when dates is empty.
// Missing data is reported as issues; provider errors abort the check.
func (c *Checker) Check(ctx context.Context, dates []time.Time) (*Report, error) {
	if len(dates) == 0 {
		all, err := c.provider.TradingDates(ctx, c.cfg.Underlying)
		if err != nil {
			return nil, fmt.Errorf("list trading dates: %w", err)
		}
		dates = all
	}

	report := &Report{
		Underlying:   c.cfg.Underlying,
		MinSpotTicks: c.minSpotTicks,
		Dates:        make([]DateReport, 0, len(dates)),
	}
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dr, err := c.checkDate(ctx, d)
		if err != nil {
			return nil, err
		}
		if !dr.OK() {
			report.Flagged++
		}
		report.Dates = append(report.Dates, dr)
	}
	return report, nil
}

func (c *Checker) checkDate(ctx context.Context, date time.Time) (DateReport, error) {
	loc := c.cfg.Location()
	dr := DateReport{Date: date}
	day := date.Format("2006-01-02")

	spot, err := c.provider.SpotSeries(ctx, c.cfg.Underlying, date)
	if err != nil {
		return dr, fmt.Errorf("spot series %s: %w", day, err)
	}
	dr.SpotTicks = spot.Len()
	switch {
	case spot.Empty():
		dr.Issues = append(dr.Issues, "no spot data")
	case spot.Len() < c.minSpotTicks:
		dr.Issues = append(dr.Issues, fmt.Sprintf("only %d spot ticks (min %d)", spot.Len(), c.minSpotTicks))
	}
	if !spot.Empty() {
		dr.FirstTick = spot.First().Timestamp
		dr.LastTick = spot.Last().Timestamp
	}

	start := c.cfg.EntryAnalysisStart.On(date, loc)
	decision := c.cfg.EntryDecisionTime.On(date, loc)
	if _, err := lookup.FirstAtOrAfter(start, lookup.Window(spot, start, decision)); err == nil {
		dr.HasAnalysisTick = true
	} else {
		dr.Issues = append(dr.Issues, fmt.Sprintf("no spot tick between %s and %s", c.cfg.EntryAnalysisStart, c.cfg.EntryDecisionTime))
	}
	if _, err := lookup.FreshPriceAtOrBefore(decision, spot, c.cfg.MaxEntryTickStaleness); err == nil {
		dr.HasDecisionTick = true
	} else {
		dr.Issues = append(dr.Issues, fmt.Sprintf("no fresh spot tick at %s", c.cfg.EntryDecisionTime))
	}

	expiries, err := c.provider.AvailableExpiries(ctx, c.cfg.Underlying, date)
	if err != nil {
		return dr, fmt.Errorf("expiries %s: %w", day, err)
	}
	dr.Expiries = len(expiries)
	if len(expiries) == 0 {
		dr.Issues = append(dr.Issues, "no option data")
		return dr, nil
	}

	expiry, err := selection.SelectExpiry(date, expiries)
	if errors.Is(err, selection.ErrNoValidExpiry) {
		dr.Issues = append(dr.Issues, "no valid expiry")
		return dr, nil
	} else if err != nil {
		return dr, err
	}
	dr.Expiry = &expiry

	strikes, err := c.provider.AvailableStrikes(ctx, c.cfg.Underlying, expiry, date)
	if err != nil {
		return dr, fmt.Errorf("strikes %s: %w", day, err)
	}
	dr.Strikes = len(strikes)
	if len(strikes) == 0 {
		dr.Issues = append(dr.Issues, fmt.Sprintf("no strikes for expiry %s", expiry.Format("2006-01-02")))
	}
	return dr, nil
}

// CheckContract reports a contract's tick coverage on date, including the
// ticks available for monitoring (at or before the exit window end).
func (c *Checker) CheckContract(ctx context.Context, contract domain.Contract, date time.Time) (*ContractReport, error) {
	series, err := c.provider.OptionSeries(ctx, contract, date)
	if err != nil {
		return nil, fmt.Errorf("option series %s: %w", contract, err)
	}

	cr := &ContractReport{
		Contract:   contract,
		Date:       date,
		TotalTicks: series.Len(),
	}
	if series.Empty() {
		return cr, nil
	}
	cr.FirstTick = series.First().Timestamp
	cr.LastTick = series.Last().Timestamp

	end := c.cfg.ExitWindowEnd.On(date, c.cfg.Location())
	cr.WindowTicks = lookup.Window(series, cr.FirstTick, end).Len()
	return cr, nil
}
