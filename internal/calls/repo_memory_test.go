package calls

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newSession(externalID, userID string) CallSession {
	return CallSession{
		ExternalCallID: externalID,
		OwnerUserID:    userID,
		Direction:      DirectionOutbound,
		FromNumber:     "+15550001111",
		ToNumber:       "+15550002222",
		Status:         StatusRinging,
	}
}

func TestMemoryStoreCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, newSession("call_1", "user-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated id")
	}
	if created.StartedAt.IsZero() {
		t.Error("expected StartedAt stamped on create")
	}
	if created.EndedAt != nil || created.DurationSeconds != nil {
		t.Error("EndedAt and DurationSeconds must be unset at create")
	}

	byID, err := store.GetByID(ctx, created.ID)
	if err != nil || byID.ExternalCallID != "call_1" {
		t.Fatalf("GetByID = %+v, %v", byID, err)
	}
	byExternal, err := store.GetByExternalID(ctx, "call_1")
	if err != nil || byExternal.ID != created.ID {
		t.Fatalf("GetByExternalID = %+v, %v", byExternal, err)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) = %v, want ErrNotFound", err)
	}
	if _, err := store.GetByProviderID(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByProviderID(empty) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreExternalIDUnique(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Create(ctx, newSession("call_dup", "user-1")); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := store.Create(ctx, newSession("call_dup", "user-2")); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate Create = %v, want ErrConflict", err)
	}
}

func TestMemoryStoreProviderIDWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, newSession("call_2", "user-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	first := "tx-aaa"
	updated, err := store.Update(ctx, created.ID, UpdateFields{ProviderCallID: &first})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ProviderCallID != "tx-aaa" {
		t.Fatalf("ProviderCallID = %q, want tx-aaa", updated.ProviderCallID)
	}

	second := "tx-bbb"
	updated, err = store.Update(ctx, created.ID, UpdateFields{ProviderCallID: &second})
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if updated.ProviderCallID != "tx-aaa" {
		t.Errorf("ProviderCallID overwritten to %q, want tx-aaa kept", updated.ProviderCallID)
	}

	// The original id still resolves; the rejected one never indexes.
	if got, err := store.GetByProviderID(ctx, "tx-aaa"); err != nil || got.ID != created.ID {
		t.Errorf("GetByProviderID(tx-aaa) = %+v, %v", got, err)
	}
	if _, err := store.GetByProviderID(ctx, "tx-bbb"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByProviderID(tx-bbb) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListByOwnerOrder(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	store := NewMemoryStore().WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	for _, id := range []string{"call_a", "call_b", "call_c"} {
		if _, err := store.Create(ctx, newSession(id, "user-1")); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
	if _, err := store.Create(ctx, newSession("call_other", "user-2")); err != nil {
		t.Fatalf("Create(other): %v", err)
	}

	list, err := store.ListByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len(list) = %d, want 3", len(list))
	}
	want := []string{"call_c", "call_b", "call_a"}
	for i, s := range list {
		if s.ExternalCallID != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, s.ExternalCallID, want[i])
		}
	}
}

func TestMemoryStoreUpdateMerges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, newSession("call_3", "user-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	answered := StatusAnswered
	updated, err := store.Update(ctx, created.ID, UpdateFields{Status: &answered})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != StatusAnswered {
		t.Errorf("Status = %s, want answered", updated.Status)
	}
	if updated.FromNumber != created.FromNumber || updated.ToNumber != created.ToNumber {
		t.Error("untouched fields changed during merge")
	}

	if _, err := store.Update(ctx, "missing", UpdateFields{Status: &answered}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) = %v, want ErrNotFound", err)
	}
}
