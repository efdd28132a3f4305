package strategy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/storage/memory"
)

const underlying = "BANKNIFTY"

var (
	entryDay = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	nextDay  = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	expiry   = time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
)

func at(day time.Time, hh, mm, ss int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hh, mm, ss, 0, time.UTC)
}

func testConfig() config.StrategyConfig {
	cfg := config.DefaultStrategyConfig()
	cfg.Timezone = "UTC"
	cfg.LotSize = 15
	return cfg
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// market builds a session in an in-memory store.
type market struct {
	t  *testing.T
	md *memory.MarketData
}

func newMarket(t *testing.T) *market {
	return &market{t: t, md: memory.NewMarketData()}
}

func (m *market) spot(points ...domain.PricePoint) *market {
	if err := m.md.InsertSpotTicks(context.Background(), underlying, points); err != nil {
		m.t.Fatalf("insert spot: %v", err)
	}
	return m
}

func (m *market) option(strike float64, ot domain.OptionType, points ...domain.PricePoint) *market {
	c := domain.Contract{Underlying: underlying, Strike: strike, OptionType: ot, Expiry: expiry}
	if err := m.md.InsertOptionTicks(context.Background(), c, points); err != nil {
		m.t.Fatalf("insert option %s: %v", c, err)
	}
	return m
}

// chain lists strikes lo..hi for both rights on the entry day.
func (m *market) chain(lo, hi, step float64) *market {
	for k := lo; k <= hi; k += step {
		for _, ot := range []domain.OptionType{domain.OptionTypePut, domain.OptionTypeCall} {
			c := domain.Contract{Underlying: underlying, Strike: k, OptionType: ot, Expiry: expiry}
			_ = m.md.InsertOptionTicks(context.Background(), c, []domain.PricePoint{pt(at(entryDay, 9, 15, 0), 1)})
		}
	}
	return m
}

func (m *market) manager(cfg config.StrategyConfig) *LifecycleManager {
	mgr, err := NewLifecycleManager(cfg, m.md, nil)
	if err != nil {
		m.t.Fatalf("NewLifecycleManager: %v", err)
	}
	return mgr
}

// upDay seeds the worked example: spot 98 -> 100, sell the 100 PE at 5.0,
// buy the 98 PE at 2.0, main stops out at 4.12 off a 4.0 low.
func upDay(t *testing.T) *market {
	return newMarket(t).
		spot(pt(at(entryDay, 9, 15, 0), 98), pt(at(entryDay, 12, 0, 0), 99.1), pt(at(entryDay, 15, 25, 0), 100)).
		chain(94, 106, 1).
		option(100, domain.OptionTypePut,
			pt(at(entryDay, 15, 25, 0), 5.0),
			pt(at(nextDay, 9, 15, 0), 4.5),
			pt(at(nextDay, 9, 16, 0), 4.0),
			pt(at(nextDay, 9, 17, 0), 4.05),
			pt(at(nextDay, 9, 18, 0), 4.12),
			pt(at(nextDay, 9, 19, 0), 4.3),
		).
		option(98, domain.OptionTypePut,
			pt(at(entryDay, 15, 24, 0), 2.0),
			pt(at(nextDay, 9, 15, 0), 1.8),
			pt(at(nextDay, 9, 20, 0), 1.85),
			pt(at(nextDay, 9, 44, 0), 1.82),
			pt(at(nextDay, 9, 50, 0), 0.5),
		)
}

func TestLifecycle_UpDay_TrailingStopAndTimeExit(t *testing.T) {
	trade, err := upDay(t).manager(testConfig()).Run(context.Background(), entryDay, nextDay)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if trade.Status != domain.TradeStatusClosed || trade.State != domain.StateClosed {
		t.Fatalf("expected CLOSED, got %s/%s (%s)", trade.Status, trade.State, trade.FailureReason)
	}
	if trade.MarketDirection != domain.MarketDirectionUp {
		t.Errorf("expected UP, got %s", trade.MarketDirection)
	}
	if trade.SpotOpen != 98 || trade.SpotEntry != 100 {
		t.Errorf("unexpected spots %f/%f", trade.SpotOpen, trade.SpotEntry)
	}

	main, hedge := trade.Main, trade.Hedge
	if main.Contract.OptionType != domain.OptionTypePut || main.Contract.Strike != 100 || hedge.Contract.Strike != 98 {
		t.Fatalf("unexpected contracts %s / %s", main.Contract, hedge.Contract)
	}
	if !main.Contract.Expiry.Equal(expiry) {
		t.Errorf("expected expiry %s, got %s", expiry, main.Contract.Expiry)
	}
	if main.Direction != domain.LegDirectionShort || hedge.Direction != domain.LegDirectionLong {
		t.Errorf("unexpected directions %s / %s", main.Direction, hedge.Direction)
	}
	if !near(main.EntryPrice, 4.975) || !near(hedge.EntryPrice, 2.01) {
		t.Errorf("unexpected entry prices %f / %f", main.EntryPrice, hedge.EntryPrice)
	}
	if !hedge.EntryTime.Equal(at(entryDay, 15, 24, 0)) {
		t.Errorf("hedge entry time should be its tick time, got %s", hedge.EntryTime)
	}

	if main.ExitReason != domain.ExitReasonTrailingStop {
		t.Fatalf("expected main TRAILING_STOP, got %s", main.ExitReason)
	}
	if !main.ExitTime.Equal(at(nextDay, 9, 18, 0)) {
		t.Errorf("expected main exit 09:18, got %s", main.ExitTime)
	}
	if !near(*main.ExitPrice, 4.1406) || !near(*main.RollingExtreme, 4.0) {
		t.Errorf("unexpected main exit %f extreme %f", *main.ExitPrice, *main.RollingExtreme)
	}
	if !near(*main.PnL, (4.975-4.1406)*15) {
		t.Errorf("expected main pnl %f, got %f", (4.975-4.1406)*15, *main.PnL)
	}
	if wantPct := (4.975 - 4.1406) * 15 / 4.975 * 100; !near(*main.PnLPct, wantPct) {
		t.Errorf("expected main pnl %% %f, got %f", wantPct, *main.PnLPct)
	}

	if hedge.ExitReason != domain.ExitReasonTimeExit {
		t.Fatalf("expected hedge TIME_EXIT, got %s", hedge.ExitReason)
	}
	if !hedge.ExitTime.Equal(at(nextDay, 9, 45, 0)) {
		t.Errorf("expected hedge exit 09:45, got %s", hedge.ExitTime)
	}
	if *hedge.ExitSignalPrice != 1.82 || !near(*hedge.ExitPrice, 1.8109) {
		t.Errorf("unexpected hedge exit %f / %f", *hedge.ExitSignalPrice, *hedge.ExitPrice)
	}

	want := (4.975-4.1406)*15 + (1.8109-2.01)*15
	if !near(trade.RealizedPnL, want) {
		t.Errorf("expected realized %f, got %f", want, trade.RealizedPnL)
	}
	if trade.RealizedPnLPct == nil || !near(*trade.RealizedPnLPct, want/(4.975+2.01)*100) {
		t.Errorf("unexpected realized pct %v", trade.RealizedPnLPct)
	}
}

func TestLifecycle_DownDay_SellsCallWithHigherHedge(t *testing.T) {
	m := newMarket(t).
		spot(pt(at(entryDay, 9, 15, 0), 102), pt(at(entryDay, 15, 25, 0), 100.4)).
		chain(94, 106, 1).
		option(100, domain.OptionTypeCall, pt(at(entryDay, 15, 25, 0), 3), pt(at(nextDay, 9, 30, 0), 3)).
		option(102, domain.OptionTypeCall, pt(at(entryDay, 15, 25, 0), 1), pt(at(nextDay, 9, 30, 0), 1))

	trade, err := m.manager(testConfig()).Run(context.Background(), entryDay, nextDay)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if trade.MarketDirection != domain.MarketDirectionDown {
		t.Fatalf("expected DOWN, got %s", trade.MarketDirection)
	}
	if trade.Main.Contract.OptionType != domain.OptionTypeCall {
		t.Errorf("expected CE, got %s", trade.Main.Contract.OptionType)
	}
	if trade.Hedge.Contract.Strike <= trade.Main.Contract.Strike {
		t.Errorf("CE hedge %g must be above ATM %g", trade.Hedge.Contract.Strike, trade.Main.Contract.Strike)
	}
	if trade.Status != domain.TradeStatusClosed {
		t.Errorf("expected CLOSED, got %s (%s)", trade.Status, trade.FailureReason)
	}
}

func TestLifecycle_FlatDayUsesConfiguredDirection(t *testing.T) {
	m := newMarket(t).
		spot(pt(at(entryDay, 9, 15, 0), 100), pt(at(entryDay, 15, 25, 0), 100)).
		chain(94, 106, 1)

	cfg := testConfig()
	cfg.FlatDirection = domain.MarketDirectionDown
	trade, err := m.manager(cfg).Run(context.Background(), entryDay, nextDay)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if trade.MarketDirection != domain.MarketDirectionDown {
		t.Errorf("expected DOWN for flat day, got %s", trade.MarketDirection)
	}
}

func TestLifecycle_ForcedExitDeterminism(t *testing.T) {
	m := newMarket(t).
		spot(pt(at(entryDay, 9, 15, 0), 98), pt(at(entryDay, 15, 25, 0), 100)).
		chain(94, 106, 1).
		option(100, domain.OptionTypePut, pt(at(entryDay, 15, 25, 0), 5),
			pt(at(nextDay, 9, 15, 0), 5), pt(at(nextDay, 9, 30, 0), 5.05), pt(at(nextDay, 9, 44, 30), 5.01)).
		option(98, domain.OptionTypePut, pt(at(entryDay, 15, 25, 0), 2),
			pt(at(nextDay, 9, 15, 0), 2), pt(at(nextDay, 9, 40, 0), 1.99))

	mgr := m.manager(testConfig())
	var first *domain.Trade
	for run := 0; run < 3; run++ {
		trade, err := mgr.Run(context.Background(), entryDay, nextDay)
		if err != nil {
			t.Fatalf("Run %d failed: %v", run, err)
		}
		for _, leg := range []*domain.Leg{trade.Main, trade.Hedge} {
			if leg.ExitReason != domain.ExitReasonTimeExit {
				t.Fatalf("run %d: %s expected TIME_EXIT, got %s", run, leg.Role, leg.ExitReason)
			}
			if !leg.ExitTime.Equal(at(nextDay, 9, 45, 0)) {
				t.Errorf("run %d: %s exit time %s", run, leg.Role, leg.ExitTime)
			}
		}
		if *trade.Main.ExitSignalPrice != 5.01 || *trade.Hedge.ExitSignalPrice != 1.99 {
			t.Errorf("run %d: exit signal should be last tick, got %f / %f", run, *trade.Main.ExitSignalPrice, *trade.Hedge.ExitSignalPrice)
		}
		if first == nil {
			first = trade
		} else if trade.RealizedPnL != first.RealizedPnL {
			t.Errorf("run %d: realized pnl changed %f -> %f", run, first.RealizedPnL, trade.RealizedPnL)
		}
	}
}

func TestLifecycle_HedgeMissingExitData(t *testing.T) {
	m := newMarket(t).
		spot(pt(at(entryDay, 9, 15, 0), 98), pt(at(entryDay, 15, 25, 0), 100)).
		chain(94, 106, 1).
		option(100, domain.OptionTypePut, pt(at(entryDay, 15, 25, 0), 5), pt(at(nextDay, 9, 20, 0), 4.9)).
		option(98, domain.OptionTypePut, pt(at(entryDay, 15, 25, 0), 2), pt(at(nextDay, 10, 0, 0), 2.2))

	trade, err := m.manager(testConfig()).Run(context.Background(), entryDay, nextDay)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if trade.Status != domain.TradeStatusFailed || trade.FailureKind != domain.FailureDataUnavailable {
		t.Fatalf("expected FAILED/DATA_UNAVAILABLE, got %s/%s", trade.Status, trade.FailureKind)
	}
	if trade.FailedState != domain.StateClosing {
		t.Errorf("expected failure in CLOSING, got %s", trade.FailedState)
	}
	if trade.Hedge.ExitReason != domain.ExitReasonDataUnavailable || trade.Hedge.ExitPrice != nil {
		t.Errorf("hedge should be DATA_UNAVAILABLE without exit, got %+v", trade.Hedge)
	}
	if !trade.Main.Closed() || trade.Main.ExitReason != domain.ExitReasonTimeExit || trade.Main.PnL == nil {
		t.Errorf("main leg should still close with pnl, got %+v", trade.Main)
	}
	if trade.RealizedPnL != 0 || trade.RealizedPnLPct != nil {
		t.Errorf("failed trade should not realize pnl, got %f / %v", trade.RealizedPnL, trade.RealizedPnLPct)
	}
	if trade.FailureReason == "" {
		t.Error("expected a failure reason")
	}
}

func TestLifecycle_EntryFailures(t *testing.T) {
	tests := []struct {
		name      string
		build     func(t *testing.T) *market
		cfg       func(*config.StrategyConfig)
		wantKind  domain.FailureKind
		wantState domain.LifecycleState
	}{
		{
			name: "no spot data",
			build: func(t *testing.T) *market {
				return newMarket(t).chain(94, 106, 1)
			},
			wantKind:  domain.FailureDataUnavailable,
			wantState: domain.StateAnalyzing,
		},
		{
			name: "stale decision spot",
			build: func(t *testing.T) *market {
				return newMarket(t).spot(pt(at(entryDay, 9, 15, 0), 98), pt(at(entryDay, 15, 0, 0), 100)).chain(94, 106, 1)
			},
			wantKind:  domain.FailureDataUnavailable,
			wantState: domain.StateAnalyzing,
		},
		{
			name: "no entry tick for main",
			build: func(t *testing.T) *market {
				return newMarket(t).
					spot(pt(at(entryDay, 9, 15, 0), 98), pt(at(entryDay, 15, 25, 0), 100)).
					chain(94, 106, 1).
					option(98, domain.OptionTypePut, pt(at(entryDay, 15, 25, 0), 2))
			},
			wantKind:  domain.FailureDataUnavailable,
			wantState: domain.StateEntering,
		},
		{
			name: "no valid expiry",
			build: func(t *testing.T) *market {
				return newMarket(t).spot(pt(at(entryDay, 9, 15, 0), 98), pt(at(entryDay, 15, 25, 0), 100))
			},
			wantKind:  domain.FailureNoValidExpiry,
			wantState: domain.StateEntering,
		},
		{
			name: "no hedge strike",
			build: func(t *testing.T) *market {
				return newMarket(t).spot(pt(at(entryDay, 9, 15, 0), 98), pt(at(entryDay, 15, 25, 0), 100)).chain(99, 101, 1)
			},
			wantKind:  domain.FailureNoStrikeAvailable,
			wantState: domain.StateEntering,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := tt.build(t).manager(testConfig()).Run(context.Background(), entryDay, nextDay)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if trade.Status != domain.TradeStatusFailed {
				t.Fatalf("expected FAILED, got %s", trade.Status)
			}
			if trade.FailureKind != tt.wantKind {
				t.Errorf("expected %s, got %s (%s)", tt.wantKind, trade.FailureKind, trade.FailureReason)
			}
			if trade.FailedState != tt.wantState {
				t.Errorf("expected failure in %s, got %s", tt.wantState, trade.FailedState)
			}
		})
	}
}

func TestLifecycle_NoNextSession(t *testing.T) {
	trade, err := upDay(t).manager(testConfig()).Run(context.Background(), entryDay, time.Time{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if trade.FailureKind != domain.FailureDataUnavailable || trade.FailedState != domain.StateMonitoring {
		t.Errorf("expected DATA_UNAVAILABLE in MONITORING, got %s in %s", trade.FailureKind, trade.FailedState)
	}
	if trade.Main == nil || trade.Main.EntryPrice == 0 {
		t.Error("entry details should be kept on a trade failing in MONITORING")
	}
}

func TestLifecycle_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trade, err := upDay(t).manager(testConfig()).Run(ctx, entryDay, nextDay)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if trade != nil {
		t.Error("expected no trade on cancellation")
	}
}

// flakyProvider fails OptionSeries for one strike.
type flakyProvider struct {
	*memory.MarketData
	failStrike float64
}

func (p flakyProvider) OptionSeries(ctx context.Context, c domain.Contract, date time.Time) (domain.Series, error) {
	if c.Strike == p.failStrike && date.Equal(nextDay) {
		return nil, errors.New("read timeout")
	}
	return p.MarketData.OptionSeries(ctx, c, date)
}

func TestLifecycle_ProviderErrorFailsOneLegOnly(t *testing.T) {
	m := upDay(t)
	mgr, err := NewLifecycleManager(testConfig(), flakyProvider{MarketData: m.md, failStrike: 98}, nil)
	if err != nil {
		t.Fatalf("NewLifecycleManager: %v", err)
	}

	trade, err := mgr.Run(context.Background(), entryDay, nextDay)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if trade.Status != domain.TradeStatusFailed {
		t.Fatalf("expected FAILED, got %s", trade.Status)
	}
	if trade.Main.ExitReason != domain.ExitReasonTrailingStop {
		t.Errorf("main leg should still stop out, got %s", trade.Main.ExitReason)
	}
	if trade.Hedge.ExitReason != domain.ExitReasonDataUnavailable {
		t.Errorf("expected hedge DATA_UNAVAILABLE, got %s", trade.Hedge.ExitReason)
	}
}

func TestNewLifecycleManager_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingBufferPct = 0
	if _, err := NewLifecycleManager(cfg, memory.NewMarketData(), nil); !errors.Is(err, config.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
	if _, err := NewLifecycleManager(testConfig(), nil, nil); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestLifecycle_MinimumHoldCountsFromSessionOpen(t *testing.T) {
	tests := []struct {
		name     string
		holdMins int
		reason   domain.ExitReason
		exitAt   time.Time
		signal   float64
	}{
		// 09:18 is exactly three minutes after the 09:15 open.
		{"default hold", 3, domain.ExitReasonTrailingStop, at(nextDay, 9, 18, 0), 4.12},
		{"hold blocks 09:18", 4, domain.ExitReasonTrailingStop, at(nextDay, 9, 19, 0), 4.3},
		{"hold outlasts ticks", 20, domain.ExitReasonTimeExit, at(nextDay, 9, 45, 0), 4.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MinHoldMinutes = tt.holdMins
			trade, err := upDay(t).manager(cfg).Run(context.Background(), entryDay, nextDay)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			main := trade.Main
			if main.ExitReason != tt.reason {
				t.Fatalf("expected %s, got %s at %v", tt.reason, main.ExitReason, main.ExitTime)
			}
			if !main.ExitTime.Equal(tt.exitAt) || *main.ExitSignalPrice != tt.signal {
				t.Errorf("expected exit %s @ %g, got %s @ %g", tt.exitAt, tt.signal, main.ExitTime, *main.ExitSignalPrice)
			}
			open := at(nextDay, 9, 15, 0)
			if main.ExitReason == domain.ExitReasonTrailingStop && main.ExitTime.Sub(open) < cfg.MinHold() {
				t.Errorf("stopped out %s after the open, inside the %s hold", main.ExitTime.Sub(open), cfg.MinHold())
			}
		})
	}
}
