package selection

import (
	"errors"
	"testing"

	"options-spread-lab/internal/domain"
)

func strikeGrid(from, to, step float64) []float64 {
	var out []float64
	for k := from; k <= to; k += step {
		out = append(out, k)
	}
	return out
}

func TestSelectATM(t *testing.T) {
	strikes := []float64{44500, 44600, 44700}
	tests := []struct {
		spot float64
		want float64
	}{
		{44610, 44600},
		{44660, 44700},
		{44650, 44600}, // tie rounds down
		{40000, 44500},
		{50000, 44700},
	}
	for _, tt := range tests {
		got, err := SelectATM(tt.spot, strikes)
		if err != nil {
			t.Fatalf("spot %g: unexpected error: %v", tt.spot, err)
		}
		if got != tt.want {
			t.Errorf("spot %g: expected %g, got %g", tt.spot, tt.want, got)
		}
	}
}

func TestSelectATM_Empty(t *testing.T) {
	if _, err := SelectATM(100, nil); !errors.Is(err, ErrNoStrikeAvailable) {
		t.Errorf("expected ErrNoStrikeAvailable, got %v", err)
	}
}

func TestSelectHedge_PutRoundsDown(t *testing.T) {
	strikes := strikeGrid(90, 110, 1)
	got, err := SelectHedge(100, domain.OptionTypePut, 0.02, strikes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 98 {
		t.Errorf("expected 98, got %g", got)
	}

	// coarse grid: 97.02 has no listing, round down to 95
	got, err = SelectHedge(99, domain.OptionTypePut, 0.02, []float64{95, 99, 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 95 {
		t.Errorf("expected 95, got %g", got)
	}
}

func TestSelectHedge_CallRoundsUp(t *testing.T) {
	strikes := strikeGrid(44000, 46000, 100)
	got, err := SelectHedge(44600, domain.OptionTypeCall, 0.02, strikes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 44600 * 1.02 = 45492 -> 45500
	if got != 45500 {
		t.Errorf("expected 45500, got %g", got)
	}
}

func TestSelectHedge_NoStrike(t *testing.T) {
	strikes := []float64{99, 100, 101}
	if _, err := SelectHedge(100, domain.OptionTypePut, 0.02, strikes); !errors.Is(err, ErrNoStrikeAvailable) {
		t.Errorf("PE: expected ErrNoStrikeAvailable, got %v", err)
	}
	if _, err := SelectHedge(100, domain.OptionTypeCall, 0.02, strikes); !errors.Is(err, ErrNoStrikeAvailable) {
		t.Errorf("CE: expected ErrNoStrikeAvailable, got %v", err)
	}
	if _, err := SelectHedge(100, domain.OptionType("XX"), 0.02, strikes); !errors.Is(err, ErrNoStrikeAvailable) {
		t.Errorf("unknown type: expected ErrNoStrikeAvailable, got %v", err)
	}
}

func TestSelectStrikes_HedgeDirection(t *testing.T) {
	strikes := strikeGrid(40000, 50000, 100)
	for spot := 41000.0; spot <= 49000; spot += 137 {
		pe, err := SelectStrikes(spot, domain.OptionTypePut, 0.02, strikes)
		if err != nil {
			t.Fatalf("PE spot %g: %v", spot, err)
		}
		if pe.Hedge >= pe.ATM {
			t.Errorf("PE spot %g: hedge %g not below ATM %g", spot, pe.Hedge, pe.ATM)
		}

		ce, err := SelectStrikes(spot, domain.OptionTypeCall, 0.02, strikes)
		if err != nil {
			t.Fatalf("CE spot %g: %v", spot, err)
		}
		if ce.Hedge <= ce.ATM {
			t.Errorf("CE spot %g: hedge %g not above ATM %g", spot, ce.Hedge, ce.ATM)
		}
	}
}

func TestSelectStrikes_HalfPointGrid(t *testing.T) {
	got, err := SelectStrikes(100, domain.OptionTypePut, 0.02, strikeGrid(90, 110, 0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ATM != 100 || got.Hedge != 98 {
		t.Errorf("expected ATM 100 / hedge 98, got %+v", got)
	}
}
