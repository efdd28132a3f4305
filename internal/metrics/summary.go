// Package metrics computes run-level statistics from trade records.
package metrics

import (
	"sort"

	"options-spread-lab/internal/domain"
)

// Summary is the statistical summary of one backtest run.
// PnL statistics cover CLOSED trades only.
type Summary struct {
	RunID string `json:"run_id"`

	// Counts
	TradingDays    int            `json:"trading_days"`
	ClosedTrades   int            `json:"closed_trades"`
	FailedTrades   int            `json:"failed_trades"`
	FailuresByKind map[string]int `json:"failures_by_kind"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	WinRate        float64        `json:"win_rate"`

	// PnL distribution
	TotalPnL  float64 `json:"total_pnl"`
	AvgPnL    float64 `json:"avg_pnl"`
	MedianPnL float64 `json:"median_pnl"`
	P10PnL    float64 `json:"p10_pnl"`
	P90PnL    float64 `json:"p90_pnl"`
	StddevPnL float64 `json:"stddev_pnl"`
	BestPnL   float64 `json:"best_pnl"`
	WorstPnL  float64 `json:"worst_pnl"`

	// Order-dependent
	MaxDrawdown          float64 `json:"max_drawdown"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`

	// ExitReasons counts exits per leg role, then per reason.
	ExitReasons map[string]map[string]int `json:"exit_reasons"`

	Daily   []PeriodPnL `json:"daily"`
	Monthly []PeriodPnL `json:"monthly"`
	Yearly  []PeriodPnL `json:"yearly"`
}

// PeriodPnL is realized PnL aggregated over a calendar period.
type PeriodPnL struct {
	Period     string  `json:"period"` // 2006-01-02, 2006-01 or 2006
	Trades     int     `json:"trades"`
	PnL        float64 `json:"pnl"`
	Cumulative float64 `json:"cumulative"`
}

// Compute builds a Summary from the records of one run.
func Compute(runID string, records []*domain.TradeRecord) *Summary {
	s := &Summary{
		RunID:          runID,
		FailuresByKind: make(map[string]int),
		ExitReasons:    make(map[string]map[string]int),
	}

	sorted := sortChronological(records)
	s.TradingDays = len(sorted)

	var pnls []float64
	var closed []*domain.TradeRecord
	for _, r := range sorted {
		countExit(s.ExitReasons, string(domain.LegRoleMain), r.MainExitReason)
		countExit(s.ExitReasons, string(domain.LegRoleHedge), r.HedgeExitReason)

		if !r.Closed() {
			s.FailedTrades++
			s.FailuresByKind[r.FailureKind]++
			continue
		}
		s.ClosedTrades++
		closed = append(closed, r)
		pnls = append(pnls, r.RealizedPnL)
		if r.RealizedPnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}

	s.WinRate = computeWinRate(s.Wins, s.ClosedTrades)
	if len(pnls) > 0 {
		ordered := make([]float64, len(pnls))
		copy(ordered, pnls)
		sort.Float64s(ordered)

		for _, p := range pnls {
			s.TotalPnL += p
		}
		s.AvgPnL = computeMean(pnls)
		s.MedianPnL = computePercentile(ordered, 0.50)
		s.P10PnL = computePercentile(ordered, 0.10)
		s.P90PnL = computePercentile(ordered, 0.90)
		s.StddevPnL = computeStddev(pnls, s.AvgPnL)
		s.BestPnL = ordered[len(ordered)-1]
		s.WorstPnL = ordered[0]
		s.MaxDrawdown = computeMaxDrawdown(pnls)
		s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(pnls)
	}

	s.Daily = groupPnL(closed, "2006-01-02")
	s.Monthly = groupPnL(closed, "2006-01")
	s.Yearly = groupPnL(closed, "2006")
	return s
}

func countExit(counts map[string]map[string]int, role, reason string) {
	if reason == "" {
		return
	}
	if counts[role] == nil {
		counts[role] = make(map[string]int)
	}
	counts[role][reason]++
}

// groupPnL buckets chronologically sorted records by EntryDate formatted with layout.
func groupPnL(records []*domain.TradeRecord, layout string) []PeriodPnL {
	var out []PeriodPnL
	cumulative := 0.0
	for _, r := range records {
		period := r.EntryDate.Format(layout)
		if len(out) == 0 || out[len(out)-1].Period != period {
			out = append(out, PeriodPnL{Period: period})
		}
		cur := &out[len(out)-1]
		cur.Trades++
		cur.PnL += r.RealizedPnL
		cumulative += r.RealizedPnL
		cur.Cumulative = cumulative
	}
	return out
}
