// Package verification replays stored trades and checks that the stored
// records match a fresh simulation of the same day.
package verification

import (
	"context"
	"math"
	"time"

	"options-spread-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single trade.
type VerificationResult struct {
	TradeID        string            // verified trade ID
	Match          bool              // true if all fields match
	Divergences    []FieldDivergence // list of divergent fields
	StoredPnL      float64           // realized PnL from stored trade
	ReplayedPnL    float64           // realized PnL from replayed simulation
	StoredStatus   string
	ReplayedStatus string
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	RunID           string
	TotalTrades     int                  // total trades verified
	MatchedTrades   int                  // trades that matched exactly
	DivergentTrades int                  // trades with divergences
	Results         []VerificationResult // individual results
}

// Verifier interface for trade replay verification.
type Verifier interface {
	// VerifyTrade verifies a single trade by ID.
	// It loads the stored trade, re-simulates its entry date,
	// and compares all fields.
	VerifyTrade(ctx context.Context, tradeID string) (*VerificationResult, error)

	// VerifyRun verifies every trade of a run.
	VerifyRun(ctx context.Context, runID string) (*VerificationReport, error)
}

// differ accumulates divergences.
type differ struct {
	out []FieldDivergence
}

func (d *differ) add(field string, expected, actual interface{}) {
	d.out = append(d.out, FieldDivergence{Field: field, Expected: expected, Actual: actual})
}

func (d *differ) str(field, a, b string) {
	if a != b {
		d.add(field, a, b)
	}
}

func (d *differ) count(field string, a, b int) {
	if a != b {
		d.add(field, a, b)
	}
}

func (d *differ) float(field string, a, b float64) {
	if !floatEquals(a, b) {
		d.add(field, a, b)
	}
}

func (d *differ) floatPtr(field string, a, b *float64) {
	if !floatPtrEquals(a, b) {
		d.add(field, a, b)
	}
}

func (d *differ) instant(field string, a, b time.Time) {
	if !a.Equal(b) {
		d.add(field, a, b)
	}
}

func (d *differ) instantPtr(field string, a, b *time.Time) {
	switch {
	case a == nil && b == nil:
	case a == nil || b == nil || !a.Equal(*b):
		d.add(field, a, b)
	}
}

// CompareTradeRecords compares two trade records and returns divergences.
// Uses FloatTolerance for float64 comparisons.
func CompareTradeRecords(stored, replayed *domain.TradeRecord) []FieldDivergence {
	d := &differ{}

	// Identity
	d.str("TradeID", stored.TradeID, replayed.TradeID)
	d.str("RunID", stored.RunID, replayed.RunID)
	d.instant("EntryDate", stored.EntryDate, replayed.EntryDate)
	d.instant("NextSessionDate", stored.NextSessionDate, replayed.NextSessionDate)
	d.str("Underlying", stored.Underlying, replayed.Underlying)

	// Analysis and selection
	d.str("MarketDirection", stored.MarketDirection, replayed.MarketDirection)
	d.str("OptionType", stored.OptionType, replayed.OptionType)
	d.instantPtr("Expiry", stored.Expiry, replayed.Expiry)
	d.float("SpotOpen", stored.SpotOpen, replayed.SpotOpen)
	d.float("SpotEntry", stored.SpotEntry, replayed.SpotEntry)
	d.count("LotSize", stored.LotSize, replayed.LotSize)

	// Main leg
	d.floatPtr("MainStrike", stored.MainStrike, replayed.MainStrike)
	d.instantPtr("MainEntryTime", stored.MainEntryTime, replayed.MainEntryTime)
	d.floatPtr("MainEntrySignalPrice", stored.MainEntrySignalPrice, replayed.MainEntrySignalPrice)
	d.floatPtr("MainEntryPrice", stored.MainEntryPrice, replayed.MainEntryPrice)
	d.instantPtr("MainExitTime", stored.MainExitTime, replayed.MainExitTime)
	d.floatPtr("MainExitSignalPrice", stored.MainExitSignalPrice, replayed.MainExitSignalPrice)
	d.floatPtr("MainExitPrice", stored.MainExitPrice, replayed.MainExitPrice)
	d.str("MainExitReason", stored.MainExitReason, replayed.MainExitReason)
	d.floatPtr("MainRollingExtreme", stored.MainRollingExtreme, replayed.MainRollingExtreme)
	d.floatPtr("MainPnL", stored.MainPnL, replayed.MainPnL)
	d.floatPtr("MainPnLPct", stored.MainPnLPct, replayed.MainPnLPct)

	// Hedge leg
	d.floatPtr("HedgeStrike", stored.HedgeStrike, replayed.HedgeStrike)
	d.instantPtr("HedgeEntryTime", stored.HedgeEntryTime, replayed.HedgeEntryTime)
	d.floatPtr("HedgeEntrySignalPrice", stored.HedgeEntrySignalPrice, replayed.HedgeEntrySignalPrice)
	d.floatPtr("HedgeEntryPrice", stored.HedgeEntryPrice, replayed.HedgeEntryPrice)
	d.instantPtr("HedgeExitTime", stored.HedgeExitTime, replayed.HedgeExitTime)
	d.floatPtr("HedgeExitSignalPrice", stored.HedgeExitSignalPrice, replayed.HedgeExitSignalPrice)
	d.floatPtr("HedgeExitPrice", stored.HedgeExitPrice, replayed.HedgeExitPrice)
	d.str("HedgeExitReason", stored.HedgeExitReason, replayed.HedgeExitReason)
	d.floatPtr("HedgeRollingExtreme", stored.HedgeRollingExtreme, replayed.HedgeRollingExtreme)
	d.floatPtr("HedgePnL", stored.HedgePnL, replayed.HedgePnL)
	d.floatPtr("HedgePnLPct", stored.HedgePnLPct, replayed.HedgePnLPct)

	// Outcome values (critical for verification)
	d.float("RealizedPnL", stored.RealizedPnL, replayed.RealizedPnL)
	d.floatPtr("RealizedPnLPct", stored.RealizedPnLPct, replayed.RealizedPnLPct)
	d.str("Status", stored.Status, replayed.Status)
	d.str("FailedState", stored.FailedState, replayed.FailedState)
	d.str("FailureKind", stored.FailureKind, replayed.FailureKind)

	return d.out
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

// floatPtrEquals compares two *float64 values within FloatTolerance.
// Returns true if both are nil, or both are non-nil and equal.
func floatPtrEquals(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEquals(*a, *b)
}
