package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"solana-tx-monitor/internal/domain"
	"solana-tx-monitor/internal/storage"
)

func TestTransactionStore_UpsertAndGet(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	info := domain.TransactionInfo{Signature: "sig1", Slot: 100}
	if err := store.Upsert(ctx, info); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, "sig1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != info {
		t.Errorf("Get mismatch: got %+v, want %+v", got, info)
	}
}

func TestTransactionStore_UpsertReplaces(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, domain.TransactionInfo{Signature: "sig1", Slot: 1}); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, domain.TransactionInfo{Signature: "sig1", Slot: 2}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	n, _ := store.Len(ctx)
	if n != 1 {
		t.Errorf("Expected 1 entry, got %d", n)
	}

	got, _ := store.Get(ctx, "sig1")
	if got.Slot != 2 {
		t.Errorf("Expected replaced slot 2, got %d", got.Slot)
	}
}

func TestTransactionStore_NotFound(t *testing.T) {
	store := NewTransactionStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTransactionStore_EmptySignature(t *testing.T) {
	store := NewTransactionStore()

	err := store.Upsert(context.Background(), domain.TransactionInfo{})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestTransactionStore_AllOrdered(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	for _, info := range []domain.TransactionInfo{
		{Signature: "b", Slot: 2},
		{Signature: "c", Slot: 1},
		{Signature: "a", Slot: 2},
	} {
		if err := store.Upsert(ctx, info); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}

	want := []string{"c", "a", "b"}
	if len(all) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(all))
	}
	for i, sig := range want {
		if all[i].Signature != sig {
			t.Errorf("All[%d] = %s, want %s", i, all[i].Signature, sig)
		}
	}
}

func TestTransactionStore_ConcurrentUpsert(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(slot uint64) {
			defer wg.Done()
			_ = store.Upsert(ctx, domain.TransactionInfo{Signature: "shared", Slot: slot})
		}(uint64(i))
	}
	wg.Wait()

	n, _ := store.Len(ctx)
	if n != 1 {
		t.Errorf("Expected 1 entry after concurrent upserts, got %d", n)
	}
}
