// Package backtest runs the daily spread strategy over a range of trading dates.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/idhash"
	"options-spread-lab/internal/logging"
	"options-spread-lab/internal/metrics"
	"options-spread-lab/internal/observability"
	"options-spread-lab/internal/storage"
	"options-spread-lab/internal/strategy"
)

// Errors
var (
	ErrInvalidRange    = errors.New("invalid date range")
	ErrNoTradingDates  = errors.New("no trading dates in range")
	ErrMissingProvider = errors.New("market data provider is required")
)

// RunRequest selects the entry dates of a run. Bounds are inclusive
// calendar days; a zero bound is open.
type RunRequest struct {
	From time.Time
	To   time.Time
}

// RunResult holds the output of one run.
type RunResult struct {
	RunID   string
	Trades  []*domain.TradeRecord
	Summary *metrics.Summary
}

// Runner executes a backtest day by day.
type Runner struct {
	manager  *strategy.LifecycleManager
	provider storage.MarketDataProvider
	store    storage.TradeStore
	sinks    []Sink
	metrics  *observability.Metrics
	log      logrus.FieldLogger
	newRunID func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithSinks adds trade sinks.
func WithSinks(sinks ...Sink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

// WithMetrics sets the metrics instance. Defaults to observability.DefaultMetrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithRunIDFunc overrides run id generation.
func WithRunIDFunc(f func() string) Option {
	return func(r *Runner) { r.newRunID = f }
}

// NewRunner creates a new backtest runner. A nil store is not allowed:
// every record is persisted before it is published.
func NewRunner(
	manager *strategy.LifecycleManager,
	provider storage.MarketDataProvider,
	store storage.TradeStore,
	log logrus.FieldLogger,
	opts ...Option,
) (*Runner, error) {
	if manager == nil {
		return nil, errors.New("lifecycle manager is required")
	}
	if provider == nil {
		return nil, ErrMissingProvider
	}
	if store == nil {
		return nil, errors.New("trade store is required")
	}
	r := &Runner{
		manager:  manager,
		provider: provider,
		store:    store,
		metrics:  observability.DefaultMetrics,
		log:      logging.OrDiscard(log),
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run simulates every trading date in req sequentially.
// One bad day never halts the run; only ctx cancellation, provider
// date listing and persistence failures return an error.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	started := time.Now()
	result, err := r.run(ctx, req)

	status := observability.StatusSuccess
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = observability.StatusCancelled
	default:
		status = observability.StatusFailed
	}
	finished := time.Now()
	r.metrics.RecordRun(status, finished.Sub(started).Seconds(), finished.Unix())
	return result, err
}

func (r *Runner) run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if !req.From.IsZero() && !req.To.IsZero() && civilDay(req.To) < civilDay(req.From) {
		return nil, fmt.Errorf("%w: %s after %s", ErrInvalidRange,
			req.From.Format("2006-01-02"), req.To.Format("2006-01-02"))
	}

	cfg := r.manager.Config()
	all, err := r.provider.TradingDates(ctx, cfg.Underlying)
	if err != nil {
		return nil, fmt.Errorf("list trading dates: %w", err)
	}

	first, last := -1, -1
	for i, d := range all {
		if inRange(d, req) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return nil, ErrNoTradingDates
	}

	runID := r.newRunID()
	log := r.log.WithField("run_id", runID)
	log.WithFields(logrus.Fields{
		"from": all[first].Format("2006-01-02"),
		"to":   all[last].Format("2006-01-02"),
		"days": last - first + 1,
	}).Info("Backtest started")

	result := &RunResult{RunID: runID}
	for i := first; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		var next time.Time
		if i+1 < len(all) {
			next = all[i+1]
		}

		rec, err := r.simulateDay(ctx, runID, all[i], next, log)
		if err != nil {
			return result, err
		}
		result.Trades = append(result.Trades, rec)
	}

	result.Summary = metrics.Compute(runID, result.Trades)
	log.WithFields(logrus.Fields{
		"closed":    result.Summary.ClosedTrades,
		"failed":    result.Summary.FailedTrades,
		"total_pnl": result.Summary.TotalPnL,
	}).Info("Backtest finished")
	return result, nil
}

func (r *Runner) simulateDay(ctx context.Context, runID string, date, next time.Time, log logrus.FieldLogger) (*domain.TradeRecord, error) {
	trade, err := r.manager.Run(ctx, date, next)
	if err != nil {
		return nil, err
	}

	cfg := r.manager.Config()
	trade.RunID = runID
	trade.TradeID = idhash.ComputeTradeID(runID, cfg.Underlying, trade.EntryDate)
	rec := trade.Record(cfg.LotSize)

	if err := r.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist trade %s: %w", rec.TradeID, err)
	}
	r.metrics.RecordTrade(trade)

	for _, s := range r.sinks {
		if err := s.OnTrade(ctx, rec); err != nil {
			log.WithError(err).WithField("trade_id", rec.TradeID).Warn("Trade sink failed")
		}
	}

	entry := log.WithFields(logrus.Fields{
		"date":   rec.EntryDate.Format("2006-01-02"),
		"status": rec.Status,
		"pnl":    rec.RealizedPnL,
	})
	if trade.Failed() {
		entry.WithFields(logrus.Fields{
			"failure_kind": rec.FailureKind,
			"reason":       rec.FailureReason,
		}).Warn("Day failed")
	} else {
		entry.Info("Day closed")
	}
	return rec, nil
}

func civilDay(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func inRange(d time.Time, req RunRequest) bool {
	day := civilDay(d)
	if !req.From.IsZero() && day < civilDay(req.From) {
		return false
	}
	if !req.To.IsZero() && day > civilDay(req.To) {
		return false
	}
	return true
}
