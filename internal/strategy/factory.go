package strategy

import (
	"errors"
	"fmt"
	"time"

	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
)

// Factory errors
var (
	ErrInvalidEngineParams = errors.New("invalid trailing stop parameters")
	ErrUnknownLegRole      = errors.New("unknown leg role")
)

// DirectionForRole returns the position direction of a spread leg:
// MAIN is always SHORT, HEDGE always LONG.
func DirectionForRole(role domain.LegRole) (domain.LegDirection, error) {
	switch role {
	case domain.LegRoleMain:
		return domain.LegDirectionShort, nil
	case domain.LegRoleHedge:
		return domain.LegDirectionLong, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLegRole, role)
	}
}

// EngineForLeg creates a fresh TrailingStopEngine for an entered leg from cfg.
// The leg is held overnight, so the minimum hold counts from the later of its
// entry and sessionOpen, the start of the session it is monitored in.
func EngineForLeg(cfg config.StrategyConfig, leg *domain.Leg, sessionOpen time.Time) (*TrailingStopEngine, error) {
	if leg == nil || leg.EntryTime.IsZero() {
		return nil, fmt.Errorf("%w: leg not entered", ErrInvalidEngineParams)
	}
	holdFrom := leg.EntryTime
	if sessionOpen.After(holdFrom) {
		holdFrom = sessionOpen
	}
	return NewTrailingStopEngine(leg.Direction, holdFrom, cfg.TrailWindow(), cfg.TrailingBuffer(), cfg.MinHold())
}
