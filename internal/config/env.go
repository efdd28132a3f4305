package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"options-spread-lab/internal/domain"
)

// Environment variable names.
const (
	EnvUnderlying            = "OSL_UNDERLYING"
	EnvTimezone              = "OSL_TIMEZONE"
	EnvEntryAnalysisStart    = "OSL_ENTRY_ANALYSIS_START"
	EnvEntryDecisionTime     = "OSL_ENTRY_DECISION_TIME"
	EnvExitWindowEnd         = "OSL_EXIT_WINDOW_END"
	EnvHedgeDistancePct      = "OSL_HEDGE_DISTANCE_PCT"
	EnvTrailingBufferPct     = "OSL_TRAILING_BUFFER_PCT"
	EnvMinHoldMinutes        = "OSL_MIN_HOLD_MINUTES"
	EnvTrailWindowMinutes    = "OSL_TRAIL_WINDOW_MINUTES"
	EnvSlippagePct           = "OSL_SLIPPAGE_PCT"
	EnvEntrySlippagePct      = "OSL_ENTRY_SLIPPAGE_PCT"
	EnvExitSlippagePct       = "OSL_EXIT_SLIPPAGE_PCT"
	EnvLotSize               = "OSL_LOT_SIZE"
	EnvFlatDirection         = "OSL_FLAT_DIRECTION"
	EnvMaxEntryTickStaleness = "OSL_MAX_ENTRY_TICK_STALENESS"

	EnvDataSource    = "OSL_DATA_SOURCE"
	EnvOptionsDBPath = "OSL_OPT_DB_PATH"
	EnvSpotDBPath    = "OSL_SPOT_DB_PATH"
	EnvClickHouseDSN = "CLICKHOUSE_DSN"
	EnvPostgresDSN   = "POSTGRES_DSN"
	EnvOutputDir     = "OSL_OUTPUT_DIR"
	EnvLogLevel      = "OSL_LOG_LEVEL"
	EnvLogFormat     = "OSL_LOG_FORMAT"
	EnvHTTPAddr      = "OSL_HTTP_ADDR"
)

// LoadFromEnv loads optional dotenv files, then builds a Config from defaults
// overridden by environment variables. Missing dotenv files are ignored.
// Variables already set in the process environment win over file values.
func LoadFromEnv(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config using lookup for variable values.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Config{Strategy: DefaultStrategyConfig(), App: DefaultAppConfig()}
	r := envReader{lookup: lookup}

	s := &cfg.Strategy
	r.str(EnvUnderlying, &s.Underlying)
	r.str(EnvTimezone, &s.Timezone)
	r.clock(EnvEntryAnalysisStart, &s.EntryAnalysisStart)
	r.clock(EnvEntryDecisionTime, &s.EntryDecisionTime)
	r.clock(EnvExitWindowEnd, &s.ExitWindowEnd)
	r.float(EnvHedgeDistancePct, &s.HedgeDistancePct)
	r.float(EnvTrailingBufferPct, &s.TrailingBufferPct)
	r.int(EnvMinHoldMinutes, &s.MinHoldMinutes)
	r.int(EnvTrailWindowMinutes, &s.TrailWindowMinutes)
	r.float(EnvSlippagePct, &s.SlippagePct)
	s.EntrySlippagePct = r.optFloat(EnvEntrySlippagePct)
	s.ExitSlippagePct = r.optFloat(EnvExitSlippagePct)
	r.int(EnvLotSize, &s.LotSize)
	r.duration(EnvMaxEntryTickStaleness, &s.MaxEntryTickStaleness)
	if v, ok := r.get(EnvFlatDirection); ok {
		s.FlatDirection = domain.MarketDirection(strings.ToUpper(v))
	}

	a := &cfg.App
	r.str(EnvDataSource, &a.DataSource)
	r.str(EnvOptionsDBPath, &a.OptionsDBPath)
	r.str(EnvSpotDBPath, &a.SpotDBPath)
	r.str(EnvClickHouseDSN, &a.ClickHouseDSN)
	r.str(EnvPostgresDSN, &a.PostgresDSN)
	r.str(EnvOutputDir, &a.OutputDir)
	r.str(EnvLogLevel, &a.LogLevel)
	r.str(EnvLogFormat, &a.LogFormat)
	r.str(EnvHTTPAddr, &a.HTTPAddr)

	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if err := s.Validate(); err != nil {
		return Config{}, err
	}
	if err := a.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) fail(key, v string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfiguration, key, v, err))
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) float(key string, dst *float64) {
	if v, ok := r.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (r *envReader) optFloat(key string) *float64 {
	var f float64
	if _, ok := r.get(key); !ok {
		return nil
	}
	before := len(r.errs)
	r.float(key, &f)
	if len(r.errs) != before {
		return nil
	}
	return &f
}

func (r *envReader) int(key string, dst *int) {
	if v, ok := r.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) clock(key string, dst *ClockTime) {
	if v, ok := r.get(key); ok {
		c, err := ParseClock(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = c
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	if v, ok := r.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = d
	}
}
