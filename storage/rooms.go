package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"roomsync/models"
)

// Rooms returns all rooms ordered by creation time.
func (s *SQLiteStore) Rooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM rooms ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	return rooms, nil
}

// RoomByName resolves one room by its unique name.
func (s *SQLiteStore) RoomByName(ctx context.Context, name string) (models.Room, error) {
	if name == "" {
		return models.Room{}, errors.New("room name is required")
	}

	var room models.Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM rooms WHERE name = ?`, name).
		Scan(&room.ID, &room.Name, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("get room %q: %w", name, err)
	}

	return room, nil
}

// CreateRoom inserts a new room with a generated id.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string) (models.Room, error) {
	if name == "" {
		return models.Room{}, errors.New("room name is required")
	}

	room := models.Room{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: nowUnixMilli(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, created_at) VALUES (?, ?, ?)`,
		room.ID, room.Name, room.CreatedAt)
	if err != nil {
		return models.Room{}, fmt.Errorf("create room %q: %w", name, err)
	}

	return room, nil
}

// CountMembers returns the number of identities belonging to a room.
func (s *SQLiteStore) CountMembers(ctx context.Context, roomID string) (int, error) {
	if roomID == "" {
		return 0, errors.New("room_id is required")
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships WHERE room_id = ?`, roomID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count members of room %q: %w", roomID, err)
	}

	return count, nil
}

// Memberships returns all memberships of one identity.
func (s *SQLiteStore) Memberships(ctx context.Context, identityID string) ([]models.Membership, error) {
	if identityID == "" {
		return nil, errors.New("identity_id is required")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, identity_id FROM memberships WHERE identity_id = ?`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list memberships for %q: %w", identityID, err)
	}
	defer rows.Close()

	var memberships []models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.RoomID, &m.IdentityID); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships for %q: %w", identityID, err)
	}

	return memberships, nil
}

// AddMembership binds an identity to a room. Adding an existing membership
// is a no-op.
func (s *SQLiteStore) AddMembership(ctx context.Context, roomID, identityID string) error {
	if roomID == "" {
		return errors.New("room_id is required")
	}
	if identityID == "" {
		return errors.New("identity_id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memberships (room_id, identity_id) VALUES (?, ?)`,
		roomID, identityID)
	if err != nil {
		return fmt.Errorf("add membership %q/%q: %w", roomID, identityID, err)
	}

	return nil
}
