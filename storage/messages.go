package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"roomsync/models"
)

// DefaultHistoryLimit bounds RecentMessages when no limit is given.
const DefaultHistoryLimit = 50

// RecentMessages returns up to limit most recent messages for a room,
// ordered ascending by creation time.
func (s *SQLiteStore) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.MessageRecord, error) {
	if roomID == "" {
		return nil, errors.New("room_id is required")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, content, content_hash, encrypted, created_at
		FROM messages
		WHERE room_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages for room %q: %w", roomID, err)
	}
	defer rows.Close()

	var records []models.MessageRecord
	for rows.Next() {
		var record models.MessageRecord
		var encrypted int
		if err := rows.Scan(&record.ID, &record.RoomID, &record.SenderID,
			&record.Content, &record.ContentHash, &encrypted, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		record.Encrypted = encrypted != 0
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get messages for room %q: %w", roomID, err)
	}

	// Query walks newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

// InsertMessage persists a new message row and returns the authoritative
// record with its assigned id and timestamp.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg NewMessage) (models.MessageRecord, error) {
	if err := validateNewMessage(msg); err != nil {
		return models.MessageRecord{}, err
	}

	encrypted := 0
	if msg.Encrypted {
		encrypted = 1
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, content, content_hash, encrypted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.RoomID, record.SenderID,
		record.Content, record.ContentHash, encrypted, record.CreatedAt)
	if err != nil {
		return models.MessageRecord{}, fmt.Errorf("insert message %q: %w", record.ID, err)
	}

	return record, nil
}
