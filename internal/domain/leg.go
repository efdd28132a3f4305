package domain

import "time"

// LegRole identifies a side of the spread.
type LegRole string

const (
	LegRoleMain  LegRole = "MAIN"
	LegRoleHedge LegRole = "HEDGE"
)

// LegDirection is the position direction of a leg.
type LegDirection string

const (
	LegDirectionShort LegDirection = "SHORT"
	LegDirectionLong  LegDirection = "LONG"
)

// ExitReason explains why a leg was closed.
type ExitReason string

// Exit reason codes
const (
	ExitReasonTrailingStop    ExitReason = "TRAILING_STOP"
	ExitReasonTimeExit        ExitReason = "TIME_EXIT"
	ExitReasonDataUnavailable ExitReason = "DATA_UNAVAILABLE"
)

// Leg is one side of the spread. MAIN is always SHORT, HEDGE always LONG.
type Leg struct {
	Role      LegRole
	Direction LegDirection
	Contract  Contract

	// Entry
	EntryTime        time.Time // timestamp of the entry tick
	EntrySignalPrice float64   // raw entry tick price
	EntryPrice       float64   // after slippage

	// Exit (nil until closed)
	ExitTime        *time.Time
	ExitSignalPrice *float64 // raw tick price at exit
	ExitPrice       *float64 // after slippage
	ExitReason      ExitReason

	// RollingExtreme is the running low (SHORT) or high (LONG) of the
	// trailing window at the last evaluated tick, or at the trigger.
	RollingExtreme *float64

	// Outcome (set by the PnL calculator once closed)
	PnL    *float64
	PnLPct *float64
}

// Closed reports whether the leg has an exit price.
func (l *Leg) Closed() bool {
	return l != nil && l.ExitTime != nil && l.ExitPrice != nil
}

// Failed reports whether the leg ended without price data.
func (l *Leg) Failed() bool {
	return l != nil && l.ExitReason == ExitReasonDataUnavailable
}

// Done reports whether the leg needs no further processing.
func (l *Leg) Done() bool {
	return l.Closed() || l.Failed()
}

// Clone returns a deep copy so callers never alias leg state.
func (l *Leg) Clone() *Leg {
	if l == nil {
		return nil
	}
	c := *l
	c.ExitTime = clonePtr(l.ExitTime)
	c.ExitSignalPrice = clonePtr(l.ExitSignalPrice)
	c.ExitPrice = clonePtr(l.ExitPrice)
	c.RollingExtreme = clonePtr(l.RollingExtreme)
	c.PnL = clonePtr(l.PnL)
	c.PnLPct = clonePtr(l.PnLPct)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
