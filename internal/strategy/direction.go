package strategy

import "options-spread-lab/internal/domain"

// AnalyzeDirection compares the decision-time spot to the session-open spot.
// Equal prices resolve to flat.
func AnalyzeDirection(open, entry float64, flat domain.MarketDirection) domain.MarketDirection {
	switch {
	case entry > open:
		return domain.MarketDirectionUp
	case entry < open:
		return domain.MarketDirectionDown
	default:
		return flat
	}
}

// OptionTypeFor maps market direction to the option sold on the main leg:
// UP sells PE, DOWN sells CE.
func OptionTypeFor(d domain.MarketDirection) domain.OptionType {
	if d == domain.MarketDirectionUp {
		return domain.OptionTypePut
	}
	return domain.OptionTypeCall
}
