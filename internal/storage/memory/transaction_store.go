package memory

import (
	"context"
	"sort"
	"sync"

	"solana-tx-monitor/internal/domain"
	"solana-tx-monitor/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
// Entries are never evicted.
type TransactionStore struct {
	mu   sync.Mutex
	data map[string]domain.TransactionInfo
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data: make(map[string]domain.TransactionInfo),
	}
}

// Upsert inserts or replaces the entry for info.Signature.
func (s *TransactionStore) Upsert(_ context.Context, info domain.TransactionInfo) error {
	if info.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	s.data[info.Signature] = info
	s.mu.Unlock()

	return nil
}

// Get retrieves a transaction by signature. Returns ErrNotFound if not exists.
func (s *TransactionStore) Get(_ context.Context, signature string) (domain.TransactionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.data[signature]
	if !ok {
		return domain.TransactionInfo{}, storage.ErrNotFound
	}
	return info, nil
}

// Len returns the number of distinct signatures stored.
func (s *TransactionStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data), nil
}

// All returns every stored transaction ordered by (slot, signature).
func (s *TransactionStore) All(_ context.Context) ([]domain.TransactionInfo, error) {
	s.mu.Lock()
	result := make([]domain.TransactionInfo, 0, len(s.data))
	for _, info := range s.data {
		result = append(result, info)
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].Signature < result[j].Signature
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TransactionStore = (*TransactionStore)(nil)
