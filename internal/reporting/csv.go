package reporting

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/metrics"
)

var tradeCSVHeader = []string{
	"trade_id", "entry_date", "next_session_date", "underlying", "market_direction",
	"option_type", "expiry", "spot_open", "spot_entry", "lot_size",
	"main_strike", "main_entry_time", "main_entry_price", "main_exit_time", "main_exit_price",
	"main_exit_reason", "main_rolling_extreme", "main_pnl", "main_pnl_pct",
	"hedge_strike", "hedge_entry_time", "hedge_entry_price", "hedge_exit_time", "hedge_exit_price",
	"hedge_exit_reason", "hedge_rolling_extreme", "hedge_pnl", "hedge_pnl_pct",
	"realized_pnl", "realized_pnl_pct", "status", "failed_state", "failure_kind", "failure_reason",
}

// RenderTradesCSV renders trade records as CSV string.
// Failure reasons are free text, so fields are quoted as needed.
func RenderTradesCSV(records []*domain.TradeRecord) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(tradeCSVHeader); err != nil {
		return "", err
	}
	for _, r := range records {
		row := []string{
			r.TradeID,
			formatDate(r.EntryDate),
			formatDate(r.NextSessionDate),
			r.Underlying,
			r.MarketDirection,
			r.OptionType,
			formatDatePtr(r.Expiry),
			formatFloat(r.SpotOpen),
			formatFloat(r.SpotEntry),
			strconv.Itoa(r.LotSize),
			formatFloatPtr(r.MainStrike),
			formatTimePtr(r.MainEntryTime),
			formatFloatPtr(r.MainEntryPrice),
			formatTimePtr(r.MainExitTime),
			formatFloatPtr(r.MainExitPrice),
			r.MainExitReason,
			formatFloatPtr(r.MainRollingExtreme),
			formatFloatPtr(r.MainPnL),
			formatFloatPtr(r.MainPnLPct),
			formatFloatPtr(r.HedgeStrike),
			formatTimePtr(r.HedgeEntryTime),
			formatFloatPtr(r.HedgeEntryPrice),
			formatTimePtr(r.HedgeExitTime),
			formatFloatPtr(r.HedgeExitPrice),
			r.HedgeExitReason,
			formatFloatPtr(r.HedgeRollingExtreme),
			formatFloatPtr(r.HedgePnL),
			formatFloatPtr(r.HedgePnLPct),
			formatFloat(r.RealizedPnL),
			formatFloatPtr(r.RealizedPnLPct),
			r.Status,
			r.FailedState,
			r.FailureKind,
			r.FailureReason,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// RenderDailyCSV renders period PnL rows as CSV string.
func RenderDailyCSV(rows []metrics.PeriodPnL) string {
	var sb strings.Builder

	sb.WriteString("period,trades,pnl,cumulative_pnl\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%.4f,%.4f\n", r.Period, r.Trades, r.PnL, r.Cumulative))
	}

	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatFloatPtr(p *float64) string {
	if p == nil {
		return ""
	}
	return formatFloat(*p)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatDatePtr(p *time.Time) string {
	if p == nil {
		return ""
	}
	return formatDate(*p)
}

func formatTimePtr(p *time.Time) string {
	if p == nil {
		return ""
	}
	return p.Format(time.RFC3339)
}
