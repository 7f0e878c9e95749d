package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roomsync/models"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on a pgx connection pool. Schema setup is
// owned by the backend deployment, not this client.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pgx pool against the given DSN.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Rooms returns all rooms ordered by creation time.
func (s *PostgresStore) Rooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx,
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
func (s *PostgresStore) RoomByName(ctx context.Context, name string) (models.Room, error) {
	if name == "" {
		return models.Room{}, errors.New("room name is required")
	}

	var room models.Room
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM rooms WHERE name = $1`, name).
		Scan(&room.ID, &room.Name, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Room{}, ErrNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("get room %q: %w", name, err)
	}

	return room, nil
}

// CreateRoom inserts a new room with a generated id.
func (s *PostgresStore) CreateRoom(ctx context.Context, name string) (models.Room, error) {
	if name == "" {
		return models.Room{}, errors.New("room name is required")
	}

	room := models.Room{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: nowUnixMilli(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rooms (id, name, created_at) VALUES ($1, $2, $3)`,
		room.ID, room.Name, room.CreatedAt)
	if err != nil {
		return models.Room{}, fmt.Errorf("create room %q: %w", name, err)
	}

	return room, nil
}

// CountMembers returns the number of identities belonging to a room.
func (s *PostgresStore) CountMembers(ctx context.Context, roomID string) (int, error) {
	if roomID == "" {
		return 0, errors.New("room_id is required")
	}

	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM memberships WHERE room_id = $1`, roomID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count members of room %q: %w", roomID, err)
	}

	return count, nil
}

// Memberships returns all memberships of one identity.
func (s *PostgresStore) Memberships(ctx context.Context, identityID string) ([]models.Membership, error) {
	if identityID == "" {
		return nil, errors.New("identity_id is required")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT room_id, identity_id FROM memberships WHERE identity_id = $1`, identityID)
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
func (s *PostgresStore) AddMembership(ctx context.Context, roomID, identityID string) error {
	if roomID == "" {
		return errors.New("room_id is required")
	}
	if identityID == "" {
		return errors.New("identity_id is required")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO memberships (room_id, identity_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		roomID, identityID)
	if err != nil {
		return fmt.Errorf("add membership %q/%q: %w", roomID, identityID, err)
	}

	return nil
}

// RecentMessages returns up to limit most recent messages for a room,
// ordered ascending by creation time.
func (s *PostgresStore) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.MessageRecord, error) {
	if roomID == "" {
		return nil, errors.New("room_id is required")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, room_id, sender_id, content, content_hash, encrypted, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages for room %q: %w", roomID, err)
	}
	defer rows.Close()

	var records []models.MessageRecord
	for rows.Next() {
		var record models.MessageRecord
		if err := rows.Scan(&record.ID, &record.RoomID, &record.SenderID,
			&record.Content, &record.ContentHash, &record.Encrypted, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get messages for room %q: %w", roomID, err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

// InsertMessage persists a new message row and returns the authoritative
// record with its assigned id and timestamp.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg NewMessage) (models.MessageRecord, error) {
	if err := validateNewMessage(msg); err != nil {
		return models.MessageRecord{}, err
	}

	record := models.MessageRecord{
		ID:          uuid.NewString(),
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		ContentHash: msg.ContentHash,
		Encrypted:   msg.Encrypted,
		CreatedAt:   nowUnixMilli(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, room_id, sender_id, content, content_hash, encrypted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.RoomID, record.SenderID,
		record.Content, record.ContentHash, record.Encrypted, record.CreatedAt)
	if err != nil {
		return models.MessageRecord{}, fmt.Errorf("insert message %q: %w", record.ID, err)
	}

	return record, nil
}

// Identity resolves one identity by id.
func (s *PostgresStore) Identity(ctx context.Context, id string) (models.Identity, error) {
	if id == "" {
		return models.Identity{}, errors.New("identity id is required")
	}

	var identity models.Identity
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, email FROM identities WHERE id = $1`, id).
		Scan(&identity.ID, &identity.DisplayName, &identity.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Identity{}, ErrNotFound
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("get identity %q: %w", id, err)
	}

	return identity, nil
}

// Identities resolves a set of identity ids in one query. Ids with no
// matching row are absent from the result map.
func (s *PostgresStore) Identities(ctx context.Context, ids []string) (map[string]models.Identity, error) {
	result := make(map[string]models.Identity, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, email FROM identities WHERE id IN (`+
			strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("get identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identity models.Identity
		if err := rows.Scan(&identity.ID, &identity.DisplayName, &identity.Email); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		result[identity.ID] = identity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get identities: %w", err)
	}

	return result, nil
}

// UpsertIdentity inserts or updates an identity row.
func (s *PostgresStore) UpsertIdentity(ctx context.Context, identity models.Identity) error {
	if identity.ID == "" {
		return errors.New("identity id is required")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO identities (id, display_name, email) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, email = EXCLUDED.email`,
		identity.ID, identity.DisplayName, identity.Email)
	if err != nil {
		return fmt.Errorf("upsert identity %q: %w", identity.ID, err)
	}

	return nil
}
