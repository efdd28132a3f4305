package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/storage"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func record(tradeID, runID string, entryDay int, pnl float64) *domain.TradeRecord {
	mainPnL := pnl
	return &domain.TradeRecord{
		TradeID:     tradeID,
		RunID:       runID,
		EntryDate:   day(entryDay),
		Underlying:  "BANKNIFTY",
		Status:      string(domain.TradeStatusClosed),
		RealizedPnL: pnl,
		MainPnL:     &mainPnL,
	}
}

func TestTradeRecordStore_InsertAndGet(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	if err := store.Insert(ctx, record("trade1", "run1", 2, 12.5)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "trade1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.RealizedPnL != 12.5 {
		t.Errorf("RealizedPnL mismatch: got %f, want %f", got.RealizedPnL, 12.5)
	}
}

func TestTradeRecordStore_DuplicateKey(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	if err := store.Insert(ctx, record("trade1", "run1", 2, 0)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	err := store.Insert(ctx, record("trade1", "run1", 2, 0))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTradeRecordStore_InvalidInput(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, record("t1", "", 2, 0)); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("missing run: expected ErrInvalidInput, got %v", err)
	}
}

func TestTradeRecordStore_NotFound(t *testing.T) {
	store := NewTradeRecordStore()
	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTradeRecordStore_InsertBulk_Atomic(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	if err := store.Insert(ctx, record("t2", "run1", 3, 0)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	batch := []*domain.TradeRecord{record("t1", "run1", 2, 0), record("t2", "run1", 3, 0)}
	if err := store.InsertBulk(ctx, batch); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByID(ctx, "t1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("failed batch must not insert any record")
	}

	intra := []*domain.TradeRecord{record("t3", "run1", 4, 0), record("t3", "run1", 4, 0)}
	if err := store.InsertBulk(ctx, intra); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
}

func TestTradeRecordStore_GetByRunID_Ordered(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	batch := []*domain.TradeRecord{
		record("c", "run1", 5, 1),
		record("a", "run1", 2, 2),
		record("b", "run1", 3, 3),
		record("x", "run2", 1, 4),
	}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].TradeID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i].TradeID)
		}
	}
}

func TestTradeRecordStore_ListRuns(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	batch := []*domain.TradeRecord{
		record("a", "run-b", 2, 0),
		record("b", "run-b", 9, 0),
		record("c", "run-a", 4, 0),
	}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-a" || runs[1].RunID != "run-b" {
		t.Errorf("unexpected order: %+v", runs)
	}
	if runs[1].TradeCount != 2 || !runs[1].FirstEntryDate.Equal(day(2)) || !runs[1].LastEntryDate.Equal(day(9)) {
		t.Errorf("unexpected run-b info: %+v", runs[1])
	}
}

func TestTradeRecordStore_CopiesOnReadAndWrite(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	r := record("t1", "run1", 2, 5)
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	*r.MainPnL = 99

	got, _ := store.GetByID(ctx, "t1")
	if *got.MainPnL != 5 {
		t.Errorf("store aliases caller record: got %f", *got.MainPnL)
	}
	*got.MainPnL = 42

	again, _ := store.GetByID(ctx, "t1")
	if *again.MainPnL != 5 {
		t.Errorf("store aliases returned record: got %f", *again.MainPnL)
	}
}
