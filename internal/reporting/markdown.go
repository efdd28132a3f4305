package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"options-spread-lab/internal/metrics"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: %s | Config: %s\n\n", r.RunID, r.ConfigHash))

	// Parameters
	sb.WriteString("## Input Parameters\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	for _, p := range r.Parameters {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", p.Name, p.Value))
	}
	sb.WriteString("\n")

	s := r.Summary
	if s == nil {
		sb.WriteString("No summary available.\n")
		return sb.String()
	}

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Trading Days | %d |\n", s.TradingDays))
	sb.WriteString(fmt.Sprintf("| Closed Trades | %d |\n", s.ClosedTrades))
	sb.WriteString(fmt.Sprintf("| Failed Trades | %d |\n", s.FailedTrades))
	sb.WriteString(fmt.Sprintf("| Wins / Losses | %d / %d |\n", s.Wins, s.Losses))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", s.WinRate))
	sb.WriteString(fmt.Sprintf("| Total PnL | %.4f |\n", s.TotalPnL))
	sb.WriteString(fmt.Sprintf("| Average PnL | %.4f |\n", s.AvgPnL))
	sb.WriteString(fmt.Sprintf("| Median PnL | %.4f |\n", s.MedianPnL))
	sb.WriteString(fmt.Sprintf("| P10 / P90 | %.4f / %.4f |\n", s.P10PnL, s.P90PnL))
	sb.WriteString(fmt.Sprintf("| Stddev | %.4f |\n", s.StddevPnL))
	sb.WriteString(fmt.Sprintf("| Best / Worst | %.4f / %.4f |\n", s.BestPnL, s.WorstPnL))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.4f |\n", s.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", s.MaxConsecutiveLosses))
	sb.WriteString("\n")

	// Exit reasons
	sb.WriteString("## Exit Reasons\n\n")
	if len(s.ExitReasons) > 0 {
		sb.WriteString("| Leg | Reason | Count |\n")
		sb.WriteString("|-----|--------|-------|\n")
		for _, role := range sortedKeys(s.ExitReasons) {
			reasons := s.ExitReasons[role]
			for _, reason := range sortedKeys(reasons) {
				sb.WriteString(fmt.Sprintf("| %s | %s | %d |\n", role, reason, reasons[reason]))
			}
		}
	} else {
		sb.WriteString("No exits recorded.\n")
	}
	sb.WriteString("\n")

	writePeriodTable(&sb, "Yearly PnL", "Year", s.Yearly)
	writePeriodTable(&sb, "Monthly PnL", "Month", s.Monthly)
	writePeriodTable(&sb, "Daily PnL", "Date", s.Daily)

	// Trades
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| Date | Dir | Type | Main | Main Exit | Hedge | Hedge Exit | PnL | PnL % | Status |\n")
		sb.WriteString("|------|-----|------|------|-----------|-------|------------|-----|-------|--------|\n")
		for _, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %.4f | %s | %s |\n",
				formatDate(t.EntryDate), t.MarketDirection, t.OptionType,
				formatStrike(t.MainStrike), t.MainExitReason,
				formatStrike(t.HedgeStrike), t.HedgeExitReason,
				t.RealizedPnL, formatPct(t.RealizedPnLPct), t.Status))
		}
	} else {
		sb.WriteString("No trades.\n")
	}
	sb.WriteString("\n")

	// Failures
	sb.WriteString("## Failures\n\n")
	if len(r.Failures) > 0 {
		for _, kind := range sortedKeys(s.FailuresByKind) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", kind, s.FailuresByKind[kind]))
		}
		sb.WriteString("\n")
		sb.WriteString("| Date | Kind | State | Reason |\n")
		sb.WriteString("|------|------|-------|--------|\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				formatDate(f.EntryDate), f.Kind, f.State, escapeCell(f.Reason)))
		}
	} else {
		sb.WriteString("No failed trades.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func writePeriodTable(sb *strings.Builder, title, label string, rows []metrics.PeriodPnL) {
	sb.WriteString(fmt.Sprintf("## %s\n\n", title))
	if len(rows) == 0 {
		sb.WriteString("No closed trades.\n\n")
		return
	}
	sb.WriteString(fmt.Sprintf("| %s | Trades | PnL | Cumulative |\n", label))
	sb.WriteString("|------|--------|-----|------------|\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %.4f |\n", r.Period, r.Trades, r.PnL, r.Cumulative))
	}
	sb.WriteString("\n")
}

func formatStrike(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *p)
}

func formatPct(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
