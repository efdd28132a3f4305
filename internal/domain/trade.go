package domain

import "time"

// MarketDirection is the intraday spot move on the entry date.
type MarketDirection string

const (
	MarketDirectionUp   MarketDirection = "UP"
	MarketDirectionDown MarketDirection = "DOWN"
)

// TradeStatus is the externally visible trade status.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "OPEN"
	TradeStatusClosed TradeStatus = "CLOSED"
	TradeStatusFailed TradeStatus = "FAILED"
)

// LifecycleState is the lifecycle manager state of a trade.
type LifecycleState string

const (
	StateAnalyzing  LifecycleState = "ANALYZING"
	StateEntering   LifecycleState = "ENTERING"
	StateMonitoring LifecycleState = "MONITORING"
	StateClosing    LifecycleState = "CLOSING"
	StateClosed     LifecycleState = "CLOSED"
	StateFailed     LifecycleState = "FAILED"
)

// FailureKind classifies why a trade FAILED.
type FailureKind string

const (
	FailureNoValidExpiry        FailureKind = "NO_VALID_EXPIRY"
	FailureNoStrikeAvailable    FailureKind = "NO_STRIKE_AVAILABLE"
	FailureDataUnavailable      FailureKind = "DATA_UNAVAILABLE"
	FailureInvalidConfiguration FailureKind = "INVALID_CONFIGURATION"
)

// Trade is one day's spread: a short MAIN leg and a long HEDGE leg.
type Trade struct {
	TradeID string
	RunID   string

	EntryDate       time.Time
	NextSessionDate time.Time
	Underlying      string

	MarketDirection MarketDirection
	SpotOpen        float64 // spot at analysis start
	SpotEntry       float64 // spot at decision time

	Main  *Leg // nil until strikes are selected
	Hedge *Leg

	RealizedPnL    float64
	RealizedPnLPct *float64 // over combined entry prices; nil unless both legs closed
	Status         TradeStatus
	State          LifecycleState

	// Failure details (FAILED only)
	FailedState   LifecycleState
	FailureKind   FailureKind
	FailureReason string
}

// Fail marks the trade FAILED at its current state.
func (t *Trade) Fail(kind FailureKind, reason string) {
	t.FailedState = t.State
	t.FailureKind = kind
	t.FailureReason = reason
	t.State = StateFailed
	t.Status = TradeStatusFailed
}

// Failed reports whether the trade FAILED.
func (t *Trade) Failed() bool {
	return t.Status == TradeStatusFailed
}

// TradeRecord is the flat, serializable per-trade row handed to reporting
// and persisted to trade_records.
type TradeRecord struct {
	TradeID string `json:"trade_id"`
	RunID   string `json:"run_id"`

	EntryDate       time.Time  `json:"entry_date"`
	NextSessionDate time.Time  `json:"next_session_date"`
	Underlying      string     `json:"underlying"`
	MarketDirection string     `json:"market_direction,omitempty"`
	OptionType      string     `json:"option_type,omitempty"`
	Expiry          *time.Time `json:"expiry,omitempty"`
	SpotOpen        float64    `json:"spot_open"`
	SpotEntry       float64    `json:"spot_entry"`
	LotSize         int        `json:"lot_size"`

	// Main (short) leg
	MainStrike           *float64   `json:"main_strike,omitempty"`
	MainEntryTime        *time.Time `json:"main_entry_time,omitempty"`
	MainEntrySignalPrice *float64   `json:"main_entry_signal_price,omitempty"`
	MainEntryPrice       *float64   `json:"main_entry_price,omitempty"`
	MainExitTime         *time.Time `json:"main_exit_time,omitempty"`
	MainExitSignalPrice  *float64   `json:"main_exit_signal_price,omitempty"`
	MainExitPrice        *float64   `json:"main_exit_price,omitempty"`
	MainExitReason       string     `json:"main_exit_reason,omitempty"`
	MainRollingExtreme   *float64   `json:"main_rolling_extreme,omitempty"`
	MainPnL              *float64   `json:"main_pnl,omitempty"`
	MainPnLPct           *float64   `json:"main_pnl_pct,omitempty"`

	// Hedge (long) leg
	HedgeStrike           *float64   `json:"hedge_strike,omitempty"`
	HedgeEntryTime        *time.Time `json:"hedge_entry_time,omitempty"`
	HedgeEntrySignalPrice *float64   `json:"hedge_entry_signal_price,omitempty"`
	HedgeEntryPrice       *float64   `json:"hedge_entry_price,omitempty"`
	HedgeExitTime         *time.Time `json:"hedge_exit_time,omitempty"`
	HedgeExitSignalPrice  *float64   `json:"hedge_exit_signal_price,omitempty"`
	HedgeExitPrice        *float64   `json:"hedge_exit_price,omitempty"`
	HedgeExitReason       string     `json:"hedge_exit_reason,omitempty"`
	HedgeRollingExtreme   *float64   `json:"hedge_rolling_extreme,omitempty"`
	HedgePnL              *float64   `json:"hedge_pnl,omitempty"`
	HedgePnLPct           *float64   `json:"hedge_pnl_pct,omitempty"`

	// Outcome
	RealizedPnL    float64  `json:"realized_pnl"`
	RealizedPnLPct *float64 `json:"realized_pnl_pct,omitempty"`
	Status         string   `json:"status"`
	FailedState    string   `json:"failed_state,omitempty"`
	FailureKind    string   `json:"failure_kind,omitempty"`
	FailureReason  string   `json:"failure_reason,omitempty"`
}

// Record flattens the trade into a TradeRecord.
func (t *Trade) Record(lotSize int) *TradeRecord {
	r := &TradeRecord{
		TradeID:         t.TradeID,
		RunID:           t.RunID,
		EntryDate:       t.EntryDate,
		NextSessionDate: t.NextSessionDate,
		Underlying:      t.Underlying,
		MarketDirection: string(t.MarketDirection),
		SpotOpen:        t.SpotOpen,
		SpotEntry:       t.SpotEntry,
		LotSize:         lotSize,
		RealizedPnL:     t.RealizedPnL,
		RealizedPnLPct:  clonePtr(t.RealizedPnLPct),
		Status:          string(t.Status),
		FailedState:     string(t.FailedState),
		FailureKind:     string(t.FailureKind),
		FailureReason:   t.FailureReason,
	}

	if m := t.Main; m != nil {
		r.OptionType = string(m.Contract.OptionType)
		r.Expiry = clonePtr(&m.Contract.Expiry)
		r.MainStrike = clonePtr(&m.Contract.Strike)
		r.MainExitTime = clonePtr(m.ExitTime)
		r.MainExitSignalPrice = clonePtr(m.ExitSignalPrice)
		r.MainExitPrice = clonePtr(m.ExitPrice)
		r.MainExitReason = string(m.ExitReason)
		r.MainRollingExtreme = clonePtr(m.RollingExtreme)
		r.MainPnL = clonePtr(m.PnL)
		r.MainPnLPct = clonePtr(m.PnLPct)
		if !m.EntryTime.IsZero() {
			r.MainEntryTime = clonePtr(&m.EntryTime)
			r.MainEntrySignalPrice = clonePtr(&m.EntrySignalPrice)
			r.MainEntryPrice = clonePtr(&m.EntryPrice)
		}
	}

	if h := t.Hedge; h != nil {
		r.HedgeStrike = clonePtr(&h.Contract.Strike)
		r.HedgeExitTime = clonePtr(h.ExitTime)
		r.HedgeExitSignalPrice = clonePtr(h.ExitSignalPrice)
		r.HedgeExitPrice = clonePtr(h.ExitPrice)
		r.HedgeExitReason = string(h.ExitReason)
		r.HedgeRollingExtreme = clonePtr(h.RollingExtreme)
		r.HedgePnL = clonePtr(h.PnL)
		r.HedgePnLPct = clonePtr(h.PnLPct)
		if !h.EntryTime.IsZero() {
			r.HedgeEntryTime = clonePtr(&h.EntryTime)
			r.HedgeEntrySignalPrice = clonePtr(&h.EntrySignalPrice)
			r.HedgeEntryPrice = clonePtr(&h.EntryPrice)
		}
	}

	return r
}

// Closed reports whether the record is a CLOSED trade.
func (r *TradeRecord) Closed() bool {
	return r.Status == string(TradeStatusClosed)
}

// Clone returns a deep copy of the record.
func (r *TradeRecord) Clone() *TradeRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Expiry = clonePtr(r.Expiry)

	c.MainStrike = clonePtr(r.MainStrike)
	c.MainEntryTime = clonePtr(r.MainEntryTime)
	c.MainEntrySignalPrice = clonePtr(r.MainEntrySignalPrice)
	c.MainEntryPrice = clonePtr(r.MainEntryPrice)
	c.MainExitTime = clonePtr(r.MainExitTime)
	c.MainExitSignalPrice = clonePtr(r.MainExitSignalPrice)
	c.MainExitPrice = clonePtr(r.MainExitPrice)
	c.MainRollingExtreme = clonePtr(r.MainRollingExtreme)
	c.MainPnL = clonePtr(r.MainPnL)
	c.MainPnLPct = clonePtr(r.MainPnLPct)

	c.HedgeStrike = clonePtr(r.HedgeStrike)
	c.HedgeEntryTime = clonePtr(r.HedgeEntryTime)
	c.HedgeEntrySignalPrice = clonePtr(r.HedgeEntrySignalPrice)
	c.HedgeEntryPrice = clonePtr(r.HedgeEntryPrice)
	c.HedgeExitTime = clonePtr(r.HedgeExitTime)
	c.HedgeExitSignalPrice = clonePtr(r.HedgeExitSignalPrice)
	c.HedgeExitPrice = clonePtr(r.HedgeExitPrice)
	c.HedgeRollingExtreme = clonePtr(r.HedgeRollingExtreme)
	c.HedgePnL = clonePtr(r.HedgePnL)
	c.HedgePnLPct = clonePtr(r.HedgePnLPct)
	c.RealizedPnLPct = clonePtr(r.RealizedPnLPct)
	return &c
}
