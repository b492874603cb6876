package memory

import (
	"context"
	"errors"
	"testing"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

func TestInstrumentStoreEnsureAssignsStableIDs(t *testing.T) {
	ctx := context.Background()
	store := NewInstrumentStore()

	inst := &domain.Instrument{Root: "SPXW", Strike: 5900, CallPut: domain.Call, Expiry: "2025-01-15"}

	id1, err := store.Ensure(ctx, inst)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if id1 == 0 {
		t.Fatal("Ensure() returned zero ID")
	}

	// Same identity returns the same ID, no new row.
	id2, err := store.Ensure(ctx, &domain.Instrument{Root: "SPXW", Strike: 5900, CallPut: domain.Call, Expiry: "2025-01-15"})
	if err != nil {
		t.Fatalf("Ensure() second call error: %v", err)
	}
	if id2 != id1 {
		t.Errorf("Ensure() second call ID = %d, want %d", id2, id1)
	}

	// Different side is a different instrument.
	id3, err := store.Ensure(ctx, &domain.Instrument{Root: "SPXW", Strike: 5900, CallPut: domain.Put, Expiry: "2025-01-15"})
	if err != nil {
		t.Fatalf("Ensure() put error: %v", err)
	}
	if id3 == id1 {
		t.Errorf("put instrument reused call ID %d", id1)
	}
}

func TestInstrumentStoreGetByKey(t *testing.T) {
	ctx := context.Background()
	store := NewInstrumentStore()

	if _, err := store.GetByKey(ctx, 5900, domain.Call, "2025-01-15"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetByKey() on empty store error = %v, want ErrNotFound", err)
	}

	id, err := store.Ensure(ctx, &domain.Instrument{Root: "SPXW", Strike: 5900, CallPut: domain.Call, Expiry: "2025-01-15"})
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}

	got, err := store.GetByKey(ctx, 5900, domain.Call, "2025-01-15")
	if err != nil {
		t.Fatalf("GetByKey() error: %v", err)
	}
	if got.ID != id {
		t.Errorf("GetByKey() ID = %d, want %d", got.ID, id)
	}
}

func TestInstrumentStoreListByExpiryOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewInstrumentStore()

	for _, strike := range []float64{5910, 5890, 5900} {
		if _, err := store.Ensure(ctx, &domain.Instrument{Root: "SPXW", Strike: strike, CallPut: domain.Call, Expiry: "2025-01-15"}); err != nil {
			t.Fatalf("Ensure(%v) error: %v", strike, err)
		}
	}
	if _, err := store.Ensure(ctx, &domain.Instrument{Root: "SPXW", Strike: 5900, CallPut: domain.Call, Expiry: "2025-01-16"}); err != nil {
		t.Fatalf("Ensure() other expiry error: %v", err)
	}

	insts, err := store.ListByExpiry(ctx, "2025-01-15")
	if err != nil {
		t.Fatalf("ListByExpiry() error: %v", err)
	}
	if len(insts) != 3 {
		t.Fatalf("len(insts) = %d, want 3", len(insts))
	}
	for i := 1; i < len(insts); i++ {
		if insts[i].Strike < insts[i-1].Strike {
			t.Errorf("instruments not ordered by strike: %v before %v", insts[i-1].Strike, insts[i].Strike)
		}
	}
}
