package quality

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/fixtures"
	"options-spread-lab/internal/storage/memory"
)

var (
	monday  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tuesday = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

func testConfig() config.StrategyConfig {
	cfg := config.DefaultStrategyConfig()
	cfg.Timezone = "UTC"
	return cfg
}

func populated(t *testing.T) *memory.MarketData {
	t.Helper()
	fx := fixtures.DefaultConfig()
	fx.Location = time.UTC
	fx.StartSpot = 10000
	fx.StrikesEachSide = 4

	md := memory.NewMarketData()
	_, err := fixtures.Populate(context.Background(), md, fx, monday, tuesday)
	require.NoError(t, err)
	return md
}

func TestCheck_FullSessions(t *testing.T) {
	checker := NewChecker(populated(t), testConfig())

	report, err := checker.Check(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, report.Dates, 2)
	assert.Equal(t, 0, report.Flagged)
	d := report.Dates[0]
	assert.True(t, d.OK(), "issues: %v", d.Issues)
	assert.Equal(t, 376, d.SpotTicks)
	assert.True(t, d.HasAnalysisTick)
	assert.True(t, d.HasDecisionTick)
	assert.Equal(t, 2, d.Expiries)
	require.NotNil(t, d.Expiry)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), *d.Expiry)
	assert.Equal(t, 9, d.Strikes)
}

func TestCheck_FlagsSparseDate(t *testing.T) {
	ctx := context.Background()
	md := memory.NewMarketData()
	require.NoError(t, md.InsertSpotTicks(ctx, "BANKNIFTY", []domain.PricePoint{
		{Timestamp: time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC), Price: 100},
		{Timestamp: time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC), Price: 101},
	}))

	report, err := NewChecker(md, testConfig()).Check(ctx, nil)
	require.NoError(t, err)

	require.Len(t, report.Dates, 1)
	assert.Equal(t, 1, report.Flagged)
	d := report.Dates[0]
	assert.True(t, d.HasAnalysisTick)
	assert.False(t, d.HasDecisionTick)
	assert.Contains(t, d.Issues, "only 2 spot ticks (min 300)")
	assert.Contains(t, d.Issues, "no fresh spot tick at 15:25")
	assert.Contains(t, d.Issues, "no option data")
}

func TestCheck_MinSpotTicksOverride(t *testing.T) {
	ctx := context.Background()
	md := memory.NewMarketData()
	require.NoError(t, md.InsertSpotTicks(ctx, "BANKNIFTY", []domain.PricePoint{
		{Timestamp: time.Date(2024, 1, 2, 15, 25, 0, 0, time.UTC), Price: 100},
	}))

	report, err := NewChecker(md, testConfig()).WithMinSpotTicks(1).Check(ctx, []time.Time{tuesday})
	require.NoError(t, err)

	for _, issue := range report.Dates[0].Issues {
		assert.False(t, strings.HasPrefix(issue, "only"), "unexpected tick count issue: %s", issue)
	}
}

func TestCheckContract_CountsMonitoringWindow(t *testing.T) {
	ctx := context.Background()
	md := populated(t)
	checker := NewChecker(md, testConfig())

	expiries, err := md.AvailableExpiries(ctx, "BANKNIFTY", tuesday)
	require.NoError(t, err)
	strikes, err := md.AvailableStrikes(ctx, "BANKNIFTY", expiries[0], tuesday)
	require.NoError(t, err)

	c := domain.Contract{Underlying: "BANKNIFTY", Strike: strikes[0], OptionType: domain.OptionTypeCall, Expiry: expiries[0]}
	cr, err := checker.CheckContract(ctx, c, tuesday)
	require.NoError(t, err)

	assert.Equal(t, 376, cr.TotalTicks)
	// 09:15..09:45 inclusive, one per minute
	assert.Equal(t, 31, cr.WindowTicks)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC), cr.FirstTick)
}

func TestRenderMarkdown(t *testing.T) {
	report, err := NewChecker(populated(t), testConfig()).Check(context.Background(), nil)
	require.NoError(t, err)

	md := RenderMarkdown(report)

	assert.Contains(t, md, "# Data Quality Report")
	assert.Contains(t, md, "| 2024-01-01 | 376 | 09:15:00 | 15:30:00 | 2 | 2024-01-04 | 9 | OK |")
}
