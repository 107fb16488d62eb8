// Package state holds the monitor's shared, process-wide state.
package state

import (
	"context"

	"solana-tx-monitor/internal/config"
	"solana-tx-monitor/internal/domain"
	"solana-tx-monitor/internal/storage"
	"solana-tx-monitor/internal/storage/memory"
)

// SharedState pairs the immutable configuration with the history of seen
// transactions. It is safe for concurrent use.
type SharedState struct {
	config config.Config
	store  storage.TransactionStore
}

// New creates shared state. A nil store uses an unbounded in-memory store.
func New(cfg config.Config, store storage.TransactionStore) *SharedState {
	if store == nil {
		store = memory.NewTransactionStore()
	}
	return &SharedState{config: cfg, store: store}
}

// Config returns the configuration the process started with.
func (s *SharedState) Config() config.Config {
	return s.config
}

// Record inserts or replaces the entry for info.Signature.
func (s *SharedState) Record(ctx context.Context, info domain.TransactionInfo) error {
	return s.store.Upsert(ctx, info)
}

// Lookup returns the entry for signature or storage.ErrNotFound.
func (s *SharedState) Lookup(ctx context.Context, signature string) (domain.TransactionInfo, error) {
	return s.store.Get(ctx, signature)
}

// Count returns the number of distinct signatures recorded.
func (s *SharedState) Count(ctx context.Context) (int, error) {
	return s.store.Len(ctx)
}

// Snapshot returns every recorded transaction ordered by slot then signature.
func (s *SharedState) Snapshot(ctx context.Context) ([]domain.TransactionInfo, error) {
	return s.store.All(ctx)
}
