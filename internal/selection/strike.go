package selection

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"options-spread-lab/internal/domain"
)

// Strikes is the ATM strike and its hedge.
type Strikes struct {
	ATM   float64
	Hedge float64
}

// SelectATM returns the strike nearest to spot. Equidistant strikes resolve
// to the lower one.
func SelectATM(spot float64, strikes []float64) (float64, error) {
	if len(strikes) == 0 {
		return 0, fmt.Errorf("%w: no strikes listed", ErrNoStrikeAvailable)
	}
	sorted := sortedCopy(strikes)

	s := decimal.NewFromFloat(spot)
	best := sorted[0]
	bestDist := decimal.NewFromFloat(best).Sub(s).Abs()
	for _, k := range sorted[1:] {
		// strict less keeps the lower strike on ties
		if d := decimal.NewFromFloat(k).Sub(s).Abs(); d.LessThan(bestDist) {
			best, bestDist = k, d
		}
	}
	return best, nil
}

// SelectHedge returns the hedge strike distance (a fraction, e.g. 0.02) away
// from atm. PE rounds down to the nearest listed strike at or below
// atm*(1-distance); CE rounds up to the nearest at or above atm*(1+distance).
// The hedge is always strictly further OTM than atm.
// Returns ErrNoStrikeAvailable if no listed strike qualifies.
func SelectHedge(atm float64, optionType domain.OptionType, distance float64, strikes []float64) (float64, error) {
	sorted := sortedCopy(strikes)
	a := decimal.NewFromFloat(atm)
	shift := a.Mul(decimal.NewFromFloat(distance))

	switch optionType {
	case domain.OptionTypePut:
		target := a.Sub(shift)
		for i := len(sorted) - 1; i >= 0; i-- {
			k := decimal.NewFromFloat(sorted[i])
			if k.LessThanOrEqual(target) && k.LessThan(a) {
				return sorted[i], nil
			}
		}
		return 0, fmt.Errorf("%w: no PE strike at or below %s", ErrNoStrikeAvailable, target)
	case domain.OptionTypeCall:
		target := a.Add(shift)
		for _, s := range sorted {
			k := decimal.NewFromFloat(s)
			if k.GreaterThanOrEqual(target) && k.GreaterThan(a) {
				return s, nil
			}
		}
		return 0, fmt.Errorf("%w: no CE strike at or above %s", ErrNoStrikeAvailable, target)
	default:
		return 0, fmt.Errorf("%w: unsupported option type %q", ErrNoStrikeAvailable, optionType)
	}
}

// SelectStrikes picks the ATM strike for spot and its hedge.
func SelectStrikes(spot float64, optionType domain.OptionType, distance float64, strikes []float64) (Strikes, error) {
	atm, err := SelectATM(spot, strikes)
	if err != nil {
		return Strikes{}, err
	}
	hedge, err := SelectHedge(atm, optionType, distance, strikes)
	if err != nil {
		return Strikes{}, err
	}
	return Strikes{ATM: atm, Hedge: hedge}, nil
}

func sortedCopy(strikes []float64) []float64 {
	out := make([]float64, len(strikes))
	copy(out, strikes)
	sort.Float64s(out)
	return out
}
