package strategy

import (
	"errors"

	"github.com/shopspring/decimal"

	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/selection"
)

// applyEntryExecution returns the fill price for opening a leg.
// Selling (SHORT) receives price*(1-slippage); buying (LONG) pays price*(1+slippage).
func applyEntryExecution(signalPrice float64, dir domain.LegDirection, slippage float64) float64 {
	return fill(signalPrice, dir == domain.LegDirectionShort, slippage)
}

// applyExitExecution returns the fill price for closing a leg.
// Closing a SHORT buys it back; closing a LONG sells it.
func applyExitExecution(signalPrice float64, dir domain.LegDirection, slippage float64) float64 {
	return fill(signalPrice, dir == domain.LegDirectionLong, slippage)
}

func fill(price float64, selling bool, slippage float64) float64 {
	p := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(slippage)
	if selling {
		return p.Mul(decimal.NewFromInt(1).Sub(s)).InexactFloat64()
	}
	return p.Mul(decimal.NewFromInt(1).Add(s)).InexactFloat64()
}

// ClassifyFailure maps an error to the failure kind recorded on the trade.
// Anything unrecognised is a data problem.
func ClassifyFailure(err error) domain.FailureKind {
	switch {
	case errors.Is(err, selection.ErrNoValidExpiry):
		return domain.FailureNoValidExpiry
	case errors.Is(err, selection.ErrNoStrikeAvailable):
		return domain.FailureNoStrikeAvailable
	case errors.Is(err, config.ErrInvalidConfiguration), errors.Is(err, ErrInvalidEngineParams):
		return domain.FailureInvalidConfiguration
	default:
		return domain.FailureDataUnavailable
	}
}
