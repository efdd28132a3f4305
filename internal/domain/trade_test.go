package domain

import (
	"testing"
	"time"
)

func ptrFloat(f float64) *float64 { return &f }

func TestTrade_Fail_RecordsState(t *testing.T) {
	trade := &Trade{Status: TradeStatusOpen, State: StateEntering}
	trade.Fail(FailureNoValidExpiry, "no expiry after 2023-09-04")

	if trade.Status != TradeStatusFailed {
		t.Errorf("expected FAILED status, got %s", trade.Status)
	}
	if trade.State != StateFailed {
		t.Errorf("expected FAILED state, got %s", trade.State)
	}
	if trade.FailedState != StateEntering {
		t.Errorf("expected failed state ENTERING, got %s", trade.FailedState)
	}
	if trade.FailureKind != FailureNoValidExpiry {
		t.Errorf("expected NO_VALID_EXPIRY, got %s", trade.FailureKind)
	}
}

func TestTrade_Record_FlattensLegs(t *testing.T) {
	entry := time.Date(2023, 9, 4, 15, 25, 0, 0, time.UTC)
	exit := time.Date(2023, 9, 5, 9, 20, 0, 0, time.UTC)
	expiry := time.Date(2023, 9, 7, 0, 0, 0, 0, time.UTC)

	trade := &Trade{
		TradeID:         "t1",
		RunID:           "run-1",
		EntryDate:       time.Date(2023, 9, 4, 0, 0, 0, 0, time.UTC),
		NextSessionDate: time.Date(2023, 9, 5, 0, 0, 0, 0, time.UTC),
		Underlying:      "BANKNIFTY",
		MarketDirection: MarketDirectionUp,
		Main: &Leg{
			Role:      LegRoleMain,
			Direction: LegDirectionShort,
			Contract:  Contract{Underlying: "BANKNIFTY", Strike: 100, OptionType: OptionTypePut, Expiry: expiry},
			EntryTime: entry, EntrySignalPrice: 5, EntryPrice: 4.975,
			ExitTime: &exit, ExitSignalPrice: ptrFloat(4.12), ExitPrice: ptrFloat(4.1406),
			ExitReason: ExitReasonTrailingStop,
			PnL:        ptrFloat(0.8344),
		},
		Hedge: &Leg{
			Role:      LegRoleHedge,
			Direction: LegDirectionLong,
			Contract:  Contract{Underlying: "BANKNIFTY", Strike: 98, OptionType: OptionTypePut, Expiry: expiry},
			EntryTime: entry, EntrySignalPrice: 2, EntryPrice: 2.01,
		},
		Status: TradeStatusClosed,
		State:  StateClosed,
	}

	r := trade.Record(15)

	if r.OptionType != "PE" {
		t.Errorf("expected option type PE, got %s", r.OptionType)
	}
	if r.MainStrike == nil || *r.MainStrike != 100 {
		t.Errorf("expected main strike 100, got %v", r.MainStrike)
	}
	if r.HedgeStrike == nil || *r.HedgeStrike != 98 {
		t.Errorf("expected hedge strike 98, got %v", r.HedgeStrike)
	}
	if r.MainExitReason != "TRAILING_STOP" {
		t.Errorf("expected TRAILING_STOP, got %s", r.MainExitReason)
	}
	if r.HedgeExitPrice != nil {
		t.Errorf("expected nil hedge exit price, got %v", *r.HedgeExitPrice)
	}
	if r.LotSize != 15 {
		t.Errorf("expected lot size 15, got %d", r.LotSize)
	}

	// Record must not alias the trade
	*r.MainExitPrice = 0
	if *trade.Main.ExitPrice != 4.1406 {
		t.Error("record aliases leg exit price")
	}
}

func TestLeg_Clone_DeepCopies(t *testing.T) {
	extreme := 4.0
	leg := &Leg{RollingExtreme: &extreme}
	clone := leg.Clone()
	*clone.RollingExtreme = 9
	if *leg.RollingExtreme != 4.0 {
		t.Error("clone aliases rolling extreme")
	}
}

func TestTradeRecord_Clone_DeepCopies(t *testing.T) {
	exit := time.Date(2023, 9, 5, 9, 45, 0, 0, time.UTC)
	r := &TradeRecord{TradeID: "t1", MainExitTime: &exit, HedgePnL: ptrFloat(-1.5)}

	c := r.Clone()
	*c.HedgePnL = 3
	*c.MainExitTime = exit.Add(time.Hour)

	if *r.HedgePnL != -1.5 {
		t.Error("clone aliases hedge pnl")
	}
	if !r.MainExitTime.Equal(exit) {
		t.Error("clone aliases main exit time")
	}
	if (*TradeRecord)(nil).Clone() != nil {
		t.Error("expected nil clone of nil record")
	}
}
