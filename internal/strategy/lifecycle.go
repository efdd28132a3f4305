package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/logging"
	"options-spread-lab/internal/lookup"
	"options-spread-lab/internal/pnl"
	"options-spread-lab/internal/selection"
	"options-spread-lab/internal/storage"
)

// ErrNoNextSession is the failure for an entry date with no following session.
var ErrNoNextSession = errors.New("no next trading session")

// LifecycleManager drives one trading day's spread through
// ANALYZING -> ENTERING -> MONITORING -> CLOSING -> CLOSED, or FAILED.
// A manager is stateless between days and safe to reuse sequentially.
type LifecycleManager struct {
	cfg      config.StrategyConfig
	provider storage.MarketDataProvider
	calc     *pnl.Calculator
	log      logrus.FieldLogger
	loc      *time.Location
}

// NewLifecycleManager validates cfg and creates a manager.
func NewLifecycleManager(cfg config.StrategyConfig, provider storage.MarketDataProvider, log logrus.FieldLogger) (*LifecycleManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, errors.New("market data provider is required")
	}
	calc, err := pnl.NewCalculator(cfg.LotSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}
	return &LifecycleManager{
		cfg:      cfg,
		provider: provider,
		calc:     calc,
		log:      logging.OrDiscard(log),
		loc:      cfg.Location(),
	}, nil
}

// Config returns the manager's configuration.
func (m *LifecycleManager) Config() config.StrategyConfig {
	return m.cfg
}

// Run simulates the trade entered on entryDate and managed on nextDate.
// A zero nextDate means no following session exists.
// Every data or selection problem yields a FAILED trade and a nil error;
// the error is non-nil only when ctx is done.
func (m *LifecycleManager) Run(ctx context.Context, entryDate, nextDate time.Time) (*domain.Trade, error) {
	t := &domain.Trade{
		EntryDate:  m.day(entryDate),
		Underlying: m.cfg.Underlying,
		Status:     domain.TradeStatusOpen,
		State:      domain.StateAnalyzing,
	}
	if !nextDate.IsZero() {
		t.NextSessionDate = m.day(nextDate)
	}

	if err := m.analyze(ctx, t); err != nil {
		return m.fail(ctx, t, err)
	}

	t.State = domain.StateEntering
	if err := m.enter(ctx, t); err != nil {
		return m.fail(ctx, t, err)
	}

	t.State = domain.StateMonitoring
	if t.NextSessionDate.IsZero() {
		return m.fail(ctx, t, ErrNoNextSession)
	}
	runs, err := m.monitor(ctx, t)
	if err != nil {
		return m.fail(ctx, t, err)
	}

	t.State = domain.StateClosing
	m.forceClose(t, runs)

	if err := m.calc.Apply(t); err != nil {
		return m.fail(ctx, t, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err))
	}

	var missing []string
	for _, r := range runs {
		if r.leg.Failed() {
			missing = append(missing, r.failReason)
		}
	}
	if len(missing) > 0 {
		t.Fail(domain.FailureDataUnavailable, strings.Join(missing, "; "))
		return t, nil
	}

	t.State = domain.StateClosed
	t.Status = domain.TradeStatusClosed
	return t, nil
}

// fail marks the trade FAILED, unless ctx is done.
func (m *LifecycleManager) fail(ctx context.Context, t *domain.Trade, err error) (*domain.Trade, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	t.Fail(ClassifyFailure(err), err.Error())
	return t, nil
}

func (m *LifecycleManager) day(d time.Time) time.Time {
	y, mo, dd := d.Date()
	return time.Date(y, mo, dd, 0, 0, 0, 0, m.loc)
}

func (m *LifecycleManager) at(day time.Time, c config.ClockTime) time.Time {
	return c.On(day, m.loc)
}

// analyze sets spot prices and the market direction.
func (m *LifecycleManager) analyze(ctx context.Context, t *domain.Trade) error {
	spot, err := m.provider.SpotSeries(ctx, m.cfg.Underlying, t.EntryDate)
	if err != nil {
		return fmt.Errorf("spot series: %w", err)
	}
	open := m.at(t.EntryDate, m.cfg.EntryAnalysisStart)
	decision := m.at(t.EntryDate, m.cfg.EntryDecisionTime)
	session := lookup.Window(spot, open, decision)

	openPt, err := lookup.FirstAtOrAfter(open, session)
	if err != nil {
		return fmt.Errorf("spot at %s: %w", m.cfg.EntryAnalysisStart, err)
	}
	entryPt, err := lookup.FreshPriceAtOrBefore(decision, session, m.cfg.MaxEntryTickStaleness)
	if err != nil {
		return fmt.Errorf("spot at %s: %w", m.cfg.EntryDecisionTime, err)
	}

	t.SpotOpen = openPt.Price
	t.SpotEntry = entryPt.Price
	t.MarketDirection = AnalyzeDirection(openPt.Price, entryPt.Price, m.cfg.FlatDirection)
	return nil
}

// enter selects expiry and strikes and fills both legs at the decision tick.
func (m *LifecycleManager) enter(ctx context.Context, t *domain.Trade) error {
	optionType := OptionTypeFor(t.MarketDirection)

	expiries, err := m.provider.AvailableExpiries(ctx, m.cfg.Underlying, t.EntryDate)
	if err != nil {
		return fmt.Errorf("available expiries: %w", err)
	}
	expiry, err := selection.SelectExpiry(t.EntryDate, expiries)
	if err != nil {
		return err
	}

	strikes, err := m.provider.AvailableStrikes(ctx, m.cfg.Underlying, expiry, t.EntryDate)
	if err != nil {
		return fmt.Errorf("available strikes: %w", err)
	}
	sel, err := selection.SelectStrikes(t.SpotEntry, optionType, m.cfg.HedgeDistance(), strikes)
	if err != nil {
		return err
	}

	contract := func(strike float64) domain.Contract {
		return domain.Contract{Underlying: m.cfg.Underlying, Strike: strike, OptionType: optionType, Expiry: expiry}
	}
	if t.Main, err = newLeg(domain.LegRoleMain, contract(sel.ATM)); err != nil {
		return err
	}
	if t.Hedge, err = newLeg(domain.LegRoleHedge, contract(sel.Hedge)); err != nil {
		return err
	}

	open := m.at(t.EntryDate, m.cfg.EntryAnalysisStart)
	decision := m.at(t.EntryDate, m.cfg.EntryDecisionTime)
	for _, leg := range []*domain.Leg{t.Main, t.Hedge} {
		series, err := m.provider.OptionSeries(ctx, leg.Contract, t.EntryDate)
		if err != nil {
			return fmt.Errorf("%s entry series %s: %w", leg.Role, leg.Contract, err)
		}
		pt, err := lookup.FreshPriceAtOrBefore(decision, lookup.Window(series, open, decision), m.cfg.MaxEntryTickStaleness)
		if err != nil {
			return fmt.Errorf("%s entry tick %s: %w", leg.Role, leg.Contract, err)
		}
		if pt.Price <= 0 {
			return fmt.Errorf("%s entry tick %s: %w: non-positive price %g", leg.Role, leg.Contract, lookup.ErrNoPriceData, pt.Price)
		}
		leg.EntryTime = pt.Timestamp
		leg.EntrySignalPrice = pt.Price
		leg.EntryPrice = applyEntryExecution(pt.Price, leg.Direction, m.cfg.EntrySlippage())
	}
	return nil
}

func newLeg(role domain.LegRole, c domain.Contract) (*domain.Leg, error) {
	dir, err := DirectionForRole(role)
	if err != nil {
		return nil, err
	}
	return &domain.Leg{Role: role, Direction: dir, Contract: c}, nil
}

// legRun is the monitoring state private to one leg.
type legRun struct {
	leg        *domain.Leg
	engine     *TrailingStopEngine
	ticks      domain.Series
	next       int
	last       *domain.PricePoint
	done       bool
	failReason string
}

// monitor feeds both legs tick by tick on a shared timeline until each
// triggers or runs out of ticks in the exit window.
func (m *LifecycleManager) monitor(ctx context.Context, t *domain.Trade) ([]*legRun, error) {
	open := m.at(t.NextSessionDate, m.cfg.EntryAnalysisStart)
	end := m.at(t.NextSessionDate, m.cfg.ExitWindowEnd)

	runs := make([]*legRun, 0, 2)
	for _, leg := range []*domain.Leg{t.Main, t.Hedge} {
		engine, err := EngineForLeg(m.cfg, leg, open)
		if err != nil {
			return nil, err
		}
		r := &legRun{leg: leg, engine: engine}
		series, err := m.provider.OptionSeries(ctx, leg.Contract, t.NextSessionDate)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.failReason = fmt.Sprintf("%s exit series %s: %v", leg.Role, leg.Contract, err)
		} else {
			r.ticks = lookup.Window(series, open, end)
		}
		runs = append(runs, r)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now, ok := nextTimestamp(runs)
		if !ok {
			return runs, nil
		}
		for _, r := range runs {
			if r.done || r.next >= len(r.ticks) || !r.ticks[r.next].Timestamp.Equal(now) {
				continue
			}
			p := r.ticks[r.next]
			r.next++
			r.last = &p

			sig := r.engine.Observe(p)
			if sig.Triggered {
				m.closeLeg(t, r, p.Timestamp, p.Price, domain.ExitReasonTrailingStop, sig.Extreme)
			}
		}
	}
}

// nextTimestamp returns the earliest pending tick across open legs.
func nextTimestamp(runs []*legRun) (time.Time, bool) {
	var next time.Time
	found := false
	for _, r := range runs {
		if r.done || r.next >= len(r.ticks) {
			continue
		}
		if ts := r.ticks[r.next].Timestamp; !found || ts.Before(next) {
			next, found = ts, true
		}
	}
	return next, found
}

// forceClose exits every still-open leg at the window end using its last tick.
// A leg with no tick in the window is marked DATA_UNAVAILABLE.
func (m *LifecycleManager) forceClose(t *domain.Trade, runs []*legRun) {
	end := m.at(t.NextSessionDate, m.cfg.ExitWindowEnd)
	for _, r := range runs {
		if r.done {
			continue
		}
		if r.last == nil {
			r.done = true
			r.leg.ExitReason = domain.ExitReasonDataUnavailable
			if r.failReason == "" {
				r.failReason = fmt.Sprintf("%s: no %s prices between %s and %s",
					r.leg.Role, r.leg.Contract, m.cfg.EntryAnalysisStart, m.cfg.ExitWindowEnd)
			}
			m.log.WithFields(logrus.Fields{
				"date": t.EntryDate.Format("2006-01-02"),
				"leg":  r.leg.Role,
			}).Debug("leg has no exit data")
			continue
		}
		extreme, _ := r.engine.Extreme()
		m.closeLeg(t, r, end, r.last.Price, domain.ExitReasonTimeExit, extreme)
	}
}

func (m *LifecycleManager) closeLeg(t *domain.Trade, r *legRun, at time.Time, signal float64, reason domain.ExitReason, extreme float64) {
	exitPrice := applyExitExecution(signal, r.leg.Direction, m.cfg.ExitSlippage())
	r.leg.ExitTime = &at
	r.leg.ExitSignalPrice = &signal
	r.leg.ExitPrice = &exitPrice
	r.leg.ExitReason = reason
	r.leg.RollingExtreme = &extreme
	r.done = true

	m.log.WithFields(logrus.Fields{
		"date":    t.EntryDate.Format("2006-01-02"),
		"leg":     r.leg.Role,
		"reason":  reason,
		"signal":  signal,
		"extreme": extreme,
		"exit_at": at.Format("15:04:05"),
	}).Debug("leg closed")
}
