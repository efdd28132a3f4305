// Package pnl converts leg fills into profit and loss.
package pnl

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"options-spread-lab/internal/domain"
)

// Errors returned by the calculator.
var (
	ErrLegOpen          = errors.New("leg has no exit price")
	ErrInvalidLotSize   = errors.New("lot size must be positive")
	ErrUnknownDirection = errors.New("unknown leg direction")
)

var hundred = decimal.NewFromInt(100)

// Calculator computes leg and trade PnL. It holds no mutable state.
type Calculator struct {
	lotSize decimal.Decimal
}

// NewCalculator creates a Calculator for the given lot size.
func NewCalculator(lotSize int) (*Calculator, error) {
	if lotSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLotSize, lotSize)
	}
	return &Calculator{lotSize: decimal.NewFromInt(int64(lotSize))}, nil
}

// LegResult is the outcome of one closed leg.
type LegResult struct {
	PnL    float64 // scaled by lot size
	PnLPct float64 // PnL / entry_price * 100
}

// Leg computes PnL for a closed leg.
//   - SHORT: (entry - exit) * lot_size
//   - LONG:  (exit - entry) * lot_size
//
// PnLPct is the lot-scaled PnL over the entry fill price, in percent.
func (c *Calculator) Leg(l *domain.Leg) (LegResult, error) {
	if l == nil || l.ExitPrice == nil {
		return LegResult{}, ErrLegOpen
	}
	entry := decimal.NewFromFloat(l.EntryPrice)
	exit := decimal.NewFromFloat(*l.ExitPrice)

	var perUnit decimal.Decimal
	switch l.Direction {
	case domain.LegDirectionShort:
		perUnit = entry.Sub(exit)
	case domain.LegDirectionLong:
		perUnit = exit.Sub(entry)
	default:
		return LegResult{}, fmt.Errorf("%w: %q", ErrUnknownDirection, l.Direction)
	}

	pnl := perUnit.Mul(c.lotSize)
	res := LegResult{PnL: pnl.InexactFloat64()}
	if entry.IsPositive() {
		res.PnLPct = pnl.Div(entry).Mul(hundred).InexactFloat64()
	}
	return res, nil
}

// Realized returns the sum of both leg PnLs without modifying the trade.
func (c *Calculator) Realized(t *domain.Trade) (float64, error) {
	total := decimal.Zero
	for _, l := range []*domain.Leg{t.Main, t.Hedge} {
		res, err := c.Leg(l)
		if err != nil {
			return 0, err
		}
		total = total.Add(decimal.NewFromFloat(res.PnL))
	}
	return total.InexactFloat64(), nil
}

// RealizedPct returns the trade PnL over the combined entry fill prices of
// both legs, in percent. It is zero when the combined entry is not positive.
func (c *Calculator) RealizedPct(t *domain.Trade) (float64, error) {
	realized, err := c.Realized(t)
	if err != nil {
		return 0, err
	}
	capital := decimal.NewFromFloat(t.Main.EntryPrice).Add(decimal.NewFromFloat(t.Hedge.EntryPrice))
	if !capital.IsPositive() {
		return 0, nil
	}
	return decimal.NewFromFloat(realized).Div(capital).Mul(hundred).InexactFloat64(), nil
}

// Apply stamps PnL on every closed leg, and sets RealizedPnL and
// RealizedPnLPct when both legs are closed. Legs without an exit are left
// untouched.
func (c *Calculator) Apply(t *domain.Trade) error {
	for _, l := range []*domain.Leg{t.Main, t.Hedge} {
		if !l.Closed() {
			continue
		}
		res, err := c.Leg(l)
		if err != nil {
			return err
		}
		l.PnL = &res.PnL
		l.PnLPct = &res.PnLPct
	}
	if t.Main.Closed() && t.Hedge.Closed() {
		realized, err := c.Realized(t)
		if err != nil {
			return err
		}
		pct, err := c.RealizedPct(t)
		if err != nil {
			return err
		}
		t.RealizedPnL = realized
		t.RealizedPnLPct = &pct
	}
	return nil
}
