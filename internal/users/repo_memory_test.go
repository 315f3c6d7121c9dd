package users

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryRepoCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	created, err := repo.Create(ctx, User{Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated id")
	}

	byID, err := repo.GetByID(ctx, created.ID)
	if err != nil || byID.Username != "alice" {
		t.Fatalf("GetByID = %+v, %v", byID, err)
	}
	byName, err := repo.GetByUsername(ctx, "alice")
	if err != nil || byName.ID != created.ID {
		t.Fatalf("GetByUsername = %+v, %v", byName, err)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByUsername(nobody) = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepoUsernameUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	if _, err := repo.Create(ctx, User{Username: "alice"}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := repo.Create(ctx, User{Username: "alice"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate Create = %v, want ErrConflict", err)
	}
}
