package memory

import (
	"context"
	"sort"
	"sync"

	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/storage"
)

// TradeRecordStore is an in-memory implementation of storage.TradeStore.
type TradeRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeRecord // keyed by trade_id
}

// NewTradeRecordStore creates a new in-memory trade record store.
func NewTradeRecordStore() *TradeRecordStore {
	return &TradeRecordStore{
		data: make(map[string]*domain.TradeRecord),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(_ context.Context, r *domain.TradeRecord) error {
	if r == nil || r.TradeID == "" || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.TradeID] = r.Clone()
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(_ context.Context, records []*domain.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.TradeID == "" || r.RunID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.TradeID] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range records {
		s.data[r.TradeID] = r.Clone()
	}

	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(_ context.Context, tradeID string) (*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

// GetByRunID retrieves all trades of a run, ordered by entry date ASC.
func (s *TradeRecordStore) GetByRunID(_ context.Context, runID string) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, r := range s.data {
		if r.RunID == runID {
			result = append(result, r.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EntryDate.Before(result[j].EntryDate)
	})

	return result, nil
}

// ListRuns returns every run, ordered by run ID.
func (s *TradeRecordStore) ListRuns(_ context.Context) ([]storage.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make(map[string]*storage.RunInfo)
	for _, r := range s.data {
		info, ok := runs[r.RunID]
		if !ok {
			info = &storage.RunInfo{RunID: r.RunID, FirstEntryDate: r.EntryDate, LastEntryDate: r.EntryDate}
			runs[r.RunID] = info
		}
		info.TradeCount++
		if r.EntryDate.Before(info.FirstEntryDate) {
			info.FirstEntryDate = r.EntryDate
		}
		if r.EntryDate.After(info.LastEntryDate) {
			info.LastEntryDate = r.EntryDate
		}
	}

	result := make([]storage.RunInfo, 0, len(runs))
	for _, info := range runs {
		result = append(result, *info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RunID < result[j].RunID })
	return result, nil
}

var _ storage.TradeStore = (*TradeRecordStore)(nil)
