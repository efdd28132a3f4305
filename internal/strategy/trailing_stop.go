package strategy

import (
	"fmt"
	"time"

	"options-spread-lab/internal/domain"
)

// priceTolerance absorbs float noise when a tick sits exactly on the stop level.
const priceTolerance = 1e-9

// Signal is the engine's verdict for one tick.
type Signal struct {
	Timestamp time.Time
	Price     float64
	Extreme   float64 // rolling low (SHORT) or high (LONG) including this tick
	StopLevel float64 // extreme shifted by the buffer
	Armed     bool    // minimum hold elapsed, stop was evaluated
	Triggered bool
}

// TrailingStopEngine is the per-leg trailing-stop state machine.
// Each leg owns one engine; engines are never shared.
//   - SHORT: extreme = rolling min, trigger when price >= min * (1 + buffer)
//   - LONG:  extreme = rolling max, trigger when price <= max * (1 - buffer)
//
// Before minHold has elapsed since holdFrom, ticks only update the window.
type TrailingStopEngine struct {
	direction domain.LegDirection
	buffer    float64
	minHold   time.Duration
	holdFrom  time.Time

	window *extremeWindow
	last   *Signal
}

// NewTrailingStopEngine creates an engine whose minimum hold starts at holdFrom.
// buffer is a fraction (0.03 = 3%).
func NewTrailingStopEngine(direction domain.LegDirection, holdFrom time.Time, window time.Duration, buffer float64, minHold time.Duration) (*TrailingStopEngine, error) {
	var keepMin bool
	switch direction {
	case domain.LegDirectionShort:
		keepMin = true
	case domain.LegDirectionLong:
		keepMin = false
	default:
		return nil, fmt.Errorf("%w: leg direction %q", ErrInvalidEngineParams, direction)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window %s", ErrInvalidEngineParams, window)
	}
	if buffer <= 0 {
		return nil, fmt.Errorf("%w: buffer %g", ErrInvalidEngineParams, buffer)
	}
	if minHold < 0 {
		return nil, fmt.Errorf("%w: min hold %s", ErrInvalidEngineParams, minHold)
	}
	return &TrailingStopEngine{
		direction: direction,
		buffer:    buffer,
		minHold:   minHold,
		holdFrom:  holdFrom,
		window:    newExtremeWindow(window, keepMin),
	}, nil
}

// Observe feeds the next tick. Ticks must be in timestamp order.
func (e *TrailingStopEngine) Observe(p domain.PricePoint) Signal {
	e.window.Push(p)
	extreme, _ := e.window.Extreme()

	sig := Signal{
		Timestamp: p.Timestamp,
		Price:     p.Price,
		Extreme:   extreme,
		Armed:     p.Timestamp.Sub(e.holdFrom) >= e.minHold,
	}
	switch e.direction {
	case domain.LegDirectionShort:
		sig.StopLevel = extreme * (1 + e.buffer)
		sig.Triggered = sig.Armed && p.Price >= sig.StopLevel-priceTolerance
	case domain.LegDirectionLong:
		sig.StopLevel = extreme * (1 - e.buffer)
		sig.Triggered = sig.Armed && p.Price <= sig.StopLevel+priceTolerance
	}
	e.last = &sig
	return sig
}

// Extreme returns the rolling extreme after the last observed tick.
func (e *TrailingStopEngine) Extreme() (float64, bool) {
	return e.window.Extreme()
}

// Last returns the signal for the most recent tick, or nil.
func (e *TrailingStopEngine) Last() *Signal {
	return e.last
}
