// Package config holds the immutable strategy and application configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"options-spread-lab/internal/domain"
)

// ErrInvalidConfiguration is returned for any rejected configuration value.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// StrategyConfig carries every strategy parameter. It is passed by value into
// component constructors and never mutated after Validate.
type StrategyConfig struct {
	Underlying string
	Timezone   string

	EntryAnalysisStart ClockTime // session open, direction analysis start
	EntryDecisionTime  ClockTime // direction decision + entry
	ExitWindowEnd      ClockTime // forced time exit on next session

	HedgeDistancePct   float64 // percent of ATM strike, e.g. 2.0
	TrailingBufferPct  float64 // percent above/below rolling extreme, e.g. 3.0
	MinHoldMinutes     int
	TrailWindowMinutes int

	SlippagePct      float64  // applied against the trader on every fill
	EntrySlippagePct *float64 // overrides SlippagePct on entry fills
	ExitSlippagePct  *float64 // overrides SlippagePct on exit fills

	LotSize int

	// FlatDirection is used when decision spot equals analysis-start spot.
	FlatDirection domain.MarketDirection

	// MaxEntryTickStaleness bounds how old the last tick at or before the
	// decision time may be before entry data counts as unavailable.
	MaxEntryTickStaleness time.Duration
}

// DefaultStrategyConfig returns the reference parameter set.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Underlying:            "BANKNIFTY",
		Timezone:              "Asia/Kolkata",
		EntryAnalysisStart:    MustClock("09:15"),
		EntryDecisionTime:     MustClock("15:25"),
		ExitWindowEnd:         MustClock("09:45"),
		HedgeDistancePct:      2.0,
		TrailingBufferPct:     3.0,
		MinHoldMinutes:        3,
		TrailWindowMinutes:    3,
		SlippagePct:           0.5,
		LotSize:               1,
		FlatDirection:         domain.MarketDirectionUp,
		MaxEntryTickStaleness: 5 * time.Minute,
	}
}

// Validate checks all parameters. Errors wrap ErrInvalidConfiguration.
func (c StrategyConfig) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfiguration}, args...)...))
	}

	if c.Underlying == "" {
		invalid("underlying is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		invalid("timezone %q: %v", c.Timezone, err)
	}
	if !c.EntryAnalysisStart.Before(c.EntryDecisionTime) {
		invalid("entry_analysis_start %s must be before entry_decision_time %s", c.EntryAnalysisStart, c.EntryDecisionTime)
	}
	if !c.EntryAnalysisStart.Before(c.ExitWindowEnd) {
		invalid("exit_window_end %s must be after session open %s", c.ExitWindowEnd, c.EntryAnalysisStart)
	}
	if c.HedgeDistancePct <= 0 || c.HedgeDistancePct >= 100 {
		invalid("hedge_distance_pct must be in (0, 100), got %g", c.HedgeDistancePct)
	}
	if c.TrailingBufferPct <= 0 {
		invalid("trailing_buffer_pct must be positive, got %g", c.TrailingBufferPct)
	}
	if c.MinHoldMinutes < 0 {
		invalid("min_hold_minutes must not be negative, got %d", c.MinHoldMinutes)
	}
	if c.TrailWindowMinutes <= 0 {
		invalid("trail_window_minutes must be positive, got %d", c.TrailWindowMinutes)
	}
	slippages := []struct {
		name string
		pct  float64
	}{
		{"slippage_pct", c.SlippagePct},
		{"entry_slippage_pct", c.EntrySlippage() * 100},
		{"exit_slippage_pct", c.ExitSlippage() * 100},
	}
	for _, s := range slippages {
		if s.pct <= 0 || s.pct >= 100 {
			invalid("%s must be in (0, 100), got %g", s.name, s.pct)
		}
	}
	if c.LotSize <= 0 {
		invalid("lot_size must be positive, got %d", c.LotSize)
	}
	if c.FlatDirection != domain.MarketDirectionUp && c.FlatDirection != domain.MarketDirectionDown {
		invalid("flat_direction must be UP or DOWN, got %q", c.FlatDirection)
	}
	if c.MaxEntryTickStaleness <= 0 {
		invalid("max_entry_tick_staleness must be positive, got %s", c.MaxEntryTickStaleness)
	}

	return errors.Join(errs...)
}

// Location returns the exchange timezone. Falls back to UTC if unknown;
// Validate rejects unknown zones.
func (c StrategyConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HedgeDistance returns the hedge distance as a fraction.
func (c StrategyConfig) HedgeDistance() float64 { return c.HedgeDistancePct / 100 }

// TrailingBuffer returns the trailing buffer as a fraction.
func (c StrategyConfig) TrailingBuffer() float64 { return c.TrailingBufferPct / 100 }

// EntrySlippage returns entry slippage as a fraction.
func (c StrategyConfig) EntrySlippage() float64 {
	if c.EntrySlippagePct != nil {
		return *c.EntrySlippagePct / 100
	}
	return c.SlippagePct / 100
}

// ExitSlippage returns exit slippage as a fraction.
func (c StrategyConfig) ExitSlippage() float64 {
	if c.ExitSlippagePct != nil {
		return *c.ExitSlippagePct / 100
	}
	return c.SlippagePct / 100
}

// MinHold returns the minimum hold duration.
func (c StrategyConfig) MinHold() time.Duration {
	return time.Duration(c.MinHoldMinutes) * time.Minute
}

// TrailWindow returns the trailing window length.
func (c StrategyConfig) TrailWindow() time.Duration {
	return time.Duration(c.TrailWindowMinutes) * time.Minute
}

// Parameter is one row of the report parameter table.
type Parameter struct {
	Name  string
	Value string
}

// Parameters returns the configuration as an ordered, human-readable table.
func (c StrategyConfig) Parameters() []Parameter {
	return []Parameter{
		{"Underlying", c.Underlying},
		{"Timezone", c.Timezone},
		{"Market Open", c.EntryAnalysisStart.String()},
		{"Entry Time", c.EntryDecisionTime.String()},
		{"Exit Time", c.ExitWindowEnd.String()},
		{"Entry Slippage", fmt.Sprintf("%g%%", c.EntrySlippage()*100)},
		{"Exit Slippage", fmt.Sprintf("%g%%", c.ExitSlippage()*100)},
		{"Hedge Distance", fmt.Sprintf("%g%%", c.HedgeDistancePct)},
		{"Trailing Buffer", fmt.Sprintf("%g%%", c.TrailingBufferPct)},
		{"Trail Timeframe", fmt.Sprintf("%d minutes", c.TrailWindowMinutes)},
		{"Minimum Hold", fmt.Sprintf("%d minutes", c.MinHoldMinutes)},
		{"Flat Direction", string(c.FlatDirection)},
		{"Max Entry Tick Staleness", c.MaxEntryTickStaleness.String()},
		{"Lot Size", fmt.Sprintf("%d", c.LotSize)},
	}
}

// Data source names for AppConfig.DataSource.
const (
	DataSourceMemory     = "memory"
	DataSourceSQLite     = "sqlite"
	DataSourceClickHouse = "clickhouse"
)

// AppConfig holds process-level settings for the cmd/ binaries.
type AppConfig struct {
	DataSource    string // memory | sqlite | clickhouse
	OptionsDBPath string // sqlite: per-date option tick tables
	SpotDBPath    string // sqlite: per-date spot tick tables
	ClickHouseDSN string
	PostgresDSN   string // empty: trade records stay in memory

	OutputDir string
	LogLevel  string
	LogFormat string // text | json
	HTTPAddr  string
}

// DefaultAppConfig returns process defaults.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		DataSource:    DataSourceMemory,
		OptionsDBPath: "data/OPT.db",
		SpotDBPath:    "data/SPOT.db",
		OutputDir:     "output",
		LogLevel:      "info",
		LogFormat:     "text",
		HTTPAddr:      ":8080",
	}
}

// Validate checks the process settings.
func (a AppConfig) Validate() error {
	switch a.DataSource {
	case DataSourceMemory:
	case DataSourceSQLite:
		if a.OptionsDBPath == "" || a.SpotDBPath == "" {
			return fmt.Errorf("%w: sqlite source requires options and spot db paths", ErrInvalidConfiguration)
		}
	case DataSourceClickHouse:
		if a.ClickHouseDSN == "" {
			return fmt.Errorf("%w: clickhouse source requires a dsn", ErrInvalidConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown data source %q", ErrInvalidConfiguration, a.DataSource)
	}
	return nil
}

// Config bundles strategy and process configuration.
type Config struct {
	Strategy StrategyConfig
	App      AppConfig
}
