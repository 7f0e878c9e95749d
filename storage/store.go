package storage

import (
	"context"
	"errors"
	"time"

	"roomsync/models"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

// NewMessage carries the caller-supplied fields of a message insert. The
// store assigns the durable id and creation timestamp and echoes the full
// record back.
type NewMessage struct {
	RoomID      string
	SenderID    string
	Content     string
	ContentHash string
	Encrypted   bool
}

// Store is the persistence surface consumed by the sync engine. Both
// SQLiteStore and PostgresStore implement it.
type Store interface {
	Close() error

	// Rooms returns all rooms ordered by creation time.
	Rooms(ctx context.Context) ([]models.Room, error)
	// RoomByName resolves one room by its unique name.
	RoomByName(ctx context.Context, name string) (models.Room, error)
	CreateRoom(ctx context.Context, name string) (models.Room, error)
	CountMembers(ctx context.Context, roomID string) (int, error)

	Memberships(ctx context.Context, identityID string) ([]models.Membership, error)
	AddMembership(ctx context.Context, roomID, identityID string) error

	// RecentMessages returns up to limit most recent messages for a room,
	// ordered ascending by creation time.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]models.MessageRecord, error)
	// InsertMessage persists a new message and returns the authoritative
	// record including the assigned id and timestamp.
	InsertMessage(ctx context.Context, msg NewMessage) (models.MessageRecord, error)

	Identity(ctx context.Context, id string) (models.Identity, error)
	// Identities resolves a set of identity ids in one round trip. Missing
	// ids are absent from the result map, not errors.
	Identities(ctx context.Context, ids []string) (map[string]models.Identity, error)
	UpsertIdentity(ctx context.Context, identity models.Identity) error
}

func validateNewMessage(msg NewMessage) error {
	if msg.RoomID == "" {
		return errors.New("room_id is required")
	}
	if msg.SenderID == "" {
		return errors.New("sender_id is required")
	}
	if msg.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
