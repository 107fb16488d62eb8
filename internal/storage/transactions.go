package storage

import (
	"context"

	"solana-tx-monitor/internal/domain"
)

// TransactionStore holds recently seen transactions keyed by signature.
type TransactionStore interface {
	// Upsert inserts or replaces the entry for info.Signature.
	// Returns ErrInvalidInput if the signature is empty.
	Upsert(ctx context.Context, info domain.TransactionInfo) error

	// Get retrieves a transaction by signature. Returns ErrNotFound if not exists.
	Get(ctx context.Context, signature string) (domain.TransactionInfo, error)

	// Len returns the number of distinct signatures stored.
	Len(ctx context.Context) (int, error)

	// All returns every stored transaction ordered by (slot, signature).
	All(ctx context.Context) ([]domain.TransactionInfo, error)
}
