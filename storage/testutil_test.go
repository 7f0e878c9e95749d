package storage

import (
	"context"
	"testing"

	"roomsync/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, _, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func mustCreateRoom(t *testing.T, store *SQLiteStore, name string) models.Room {
	t.Helper()

	room, err := store.CreateRoom(context.Background(), name)
	if err != nil {
		t.Fatalf("create room %q: %v", name, err)
	}
	return room
}

func mustUpsertIdentity(t *testing.T, store *SQLiteStore, id, name, email string) {
	t.Helper()

	err := store.UpsertIdentity(context.Background(), models.Identity{
		ID:          id,
		DisplayName: name,
		Email:       email,
	})
	if err != nil {
		t.Fatalf("upsert identity %q: %v", id, err)
	}
}
