package idhash

import (
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"options-spread-lab/internal/config"
)

func TestComputeTradeID(t *testing.T) {
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	got := ComputeTradeID("run-1", "BANKNIFTY", date)
	raw, err := base58.Decode(got)
	if err != nil {
		t.Fatalf("trade id is not base58: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("decoded length = %d, want 32", len(raw))
	}
}

func TestComputeTradeID_Deterministic(t *testing.T) {
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	first := ComputeTradeID("run-1", "BANKNIFTY", date)

	for i := 0; i < 10; i++ {
		if got := ComputeTradeID("run-1", "BANKNIFTY", date); got != first {
			t.Fatalf("iteration %d: %s != %s", i, got, first)
		}
	}

	// Only the calendar day matters
	if got := ComputeTradeID("run-1", "BANKNIFTY", date.Add(15*time.Hour)); got != first {
		t.Errorf("clock time changed id: %s != %s", got, first)
	}
}

func TestComputeTradeID_Unique(t *testing.T) {
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	ids := map[string]string{
		"base":       ComputeTradeID("run-1", "BANKNIFTY", date),
		"run":        ComputeTradeID("run-2", "BANKNIFTY", date),
		"underlying": ComputeTradeID("run-1", "NIFTY", date),
		"date":       ComputeTradeID("run-1", "BANKNIFTY", date.AddDate(0, 0, 1)),
	}
	seen := make(map[string]string)
	for name, id := range ids {
		if other, dup := seen[id]; dup {
			t.Errorf("%s and %s collide: %s", name, other, id)
		}
		seen[id] = name
	}
}

func TestComputeConfigHash(t *testing.T) {
	a := config.DefaultStrategyConfig()
	b := config.DefaultStrategyConfig()
	if ComputeConfigHash(a.Parameters()) != ComputeConfigHash(b.Parameters()) {
		t.Error("equal configs must hash equally")
	}
	if got := ComputeConfigHash(a.Parameters()); len(got) != 64 {
		t.Errorf("hash length = %d, want 64", len(got))
	}

	b.TrailingBufferPct = 4
	if ComputeConfigHash(a.Parameters()) == ComputeConfigHash(b.Parameters()) {
		t.Error("different configs must hash differently")
	}
}
