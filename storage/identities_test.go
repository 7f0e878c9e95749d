package storage

import (
	"context"
	"errors"
	"testing"
)

func TestIdentityLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustUpsertIdentity(t, store, "alice", "Alice", "alice@example.com")

	identity, err := store.Identity(ctx, "alice")
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if identity.DisplayName != "Alice" || identity.Email != "alice@example.com" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if _, err := store.Identity(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIdentitiesBatchLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustUpsertIdentity(t, store, "alice", "Alice", "alice@example.com")
	mustUpsertIdentity(t, store, "bob", "", "bob@example.com")

	identities, err := store.Identities(ctx, []string{"alice", "bob", "ghost"})
	if err != nil {
		t.Fatalf("Identities failed: %v", err)
	}
	if len(identities) != 2 {
		t.Fatalf("expected 2 resolved identities, got %d", len(identities))
	}
	if _, ok := identities["ghost"]; ok {
		t.Fatalf("missing id must be absent, not present")
	}

	empty, err := store.Identities(ctx, nil)
	if err != nil {
		t.Fatalf("Identities with no ids failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty result, got %+v", empty)
	}
}

func TestUpsertIdentityOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustUpsertIdentity(t, store, "alice", "Alice", "alice@example.com")
	mustUpsertIdentity(t, store, "alice", "Alice B.", "aliceb@example.com")

	identity, err := store.Identity(ctx, "alice")
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if identity.DisplayName != "Alice B." || identity.Email != "aliceb@example.com" {
		t.Fatalf("upsert did not overwrite: %+v", identity)
	}
}
