package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/idhash"
	"options-spread-lab/internal/metrics"
	"options-spread-lab/internal/observability"
	"options-spread-lab/internal/storage"
)

// Generator produces reports from stored trades.
type Generator struct {
	tradeStore storage.TradeStore
	cfg        config.StrategyConfig
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(tradeStore storage.TradeStore, cfg config.StrategyConfig) *Generator {
	return &Generator{
		tradeStore: tradeStore,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces the report for one run.
// Returns metrics.ErrNoTrades if the run has no stored trades.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	records, err := g.tradeStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades for run %s: %w", runID, err)
	}
	if len(records) == 0 {
		return nil, metrics.ErrNoTrades
	}
	return g.Build(runID, records), nil
}

// Build assembles a report from records already in hand.
func (g *Generator) Build(runID string, records []*domain.TradeRecord) *Report {
	trades := make([]*domain.TradeRecord, len(records))
	copy(trades, records)
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].EntryDate.Before(trades[j].EntryDate)
	})

	var failures []FailureRow
	for _, t := range trades {
		if t.Status != string(domain.TradeStatusFailed) {
			continue
		}
		failures = append(failures, FailureRow{
			EntryDate: t.EntryDate,
			Kind:      t.FailureKind,
			State:     t.FailedState,
			Reason:    t.FailureReason,
		})
	}

	params := g.cfg.Parameters()
	return &Report{
		GeneratedAt: g.now(),
		RunID:       runID,
		ConfigHash:  idhash.ComputeConfigHash(params),
		Parameters:  params,
		Summary:     metrics.Compute(runID, trades),
		Trades:      trades,
		Failures:    failures,
	}
}

// Report file names written by WriteFiles.
const (
	MarkdownFile = "report.md"
	TradesFile   = "trades.csv"
	DailyFile    = "daily_pnl.csv"
	MonthlyFile  = "monthly_pnl.csv"
)

// WriteFiles renders the report into dir and returns the written paths.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	tradesCSV, err := RenderTradesCSV(r.Trades)
	if err != nil {
		return nil, fmt.Errorf("render trades csv: %w", err)
	}

	var daily, monthly []metrics.PeriodPnL
	if r.Summary != nil {
		daily, monthly = r.Summary.Daily, r.Summary.Monthly
	}

	files := []struct {
		name    string
		content string
	}{
		{MarkdownFile, RenderMarkdown(r)},
		{TradesFile, tradesCSV},
		{DailyFile, RenderDailyCSV(daily)},
		{MonthlyFile, RenderDailyCSV(monthly)},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}

	observability.RecordReportGenerated()
	return paths, nil
}
