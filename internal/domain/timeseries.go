package domain

import "time"

// PricePoint is one sampled tick/bar for spot or an option contract.
// Series of PricePoints are ordered by Timestamp ASC with no duplicate timestamps.
type PricePoint struct {
	Timestamp time.Time // tick time, in the exchange timezone
	Price     float64   // close/last price
}

// Series is an ordered sequence of PricePoints.
type Series []PricePoint

// Len returns the number of points.
func (s Series) Len() int { return len(s) }

// Empty reports whether the series has no points.
func (s Series) Empty() bool { return len(s) == 0 }

// First returns the earliest point. Callers must check Empty first.
func (s Series) First() PricePoint { return s[0] }

// Last returns the latest point. Callers must check Empty first.
func (s Series) Last() PricePoint { return s[len(s)-1] }
