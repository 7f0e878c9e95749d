package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"roomsync/models"
)

// loadHistory fetches the bounded recent-message window for one room and
// resolves sender names and plaintext. The completion is discarded when the
// active room moved on while the read was in flight.
func (e *Engine) loadHistory(roomID string) {
	ctx := context.Background()

	records, err := e.store.RecentMessages(ctx, roomID, e.historyLimit)
	if err != nil {
		e.post(func() {
			if e.ActiveRoomID() != roomID {
				return
			}
			e.notify(OpHistory, fmt.Errorf("load history: %w", err))
		})
		return
	}

	messages := e.resolveRecords(ctx, roomID, records)
	e.post(func() { e.applyHistory(roomID, messages) })
}

// resolveRecords turns store records into visible messages: batched,
// deduplicated sender lookup, decryption where flagged, status delivered.
func (e *Engine) resolveRecords(ctx context.Context, roomID string, records []models.MessageRecord) []models.Message {
	seen := make(map[string]bool, len(records))
	senderIDs := make([]string, 0, len(records))
	for _, record := range records {
		if !seen[record.SenderID] {
			seen[record.SenderID] = true
			senderIDs = append(senderIDs, record.SenderID)
		}
	}

	identities, err := e.store.Identities(ctx, senderIDs)
	if err != nil {
		// Name resolution degrades to "Unknown"; it never fails the load.
		e.log.Warn("identity batch lookup failed", zap.Error(err))
		identities = nil
	}

	messages := make([]models.Message, 0, len(records))
	for _, record := range records {
		messages = append(messages, models.Message{
			ID:         record.ID,
			RoomID:     record.RoomID,
			SenderID:   record.SenderID,
			SenderName: resolveSenderName(identities, record.SenderID),
			Content:    e.plaintextOf(record),
			CreatedAt:  record.CreatedAt,
			Encrypted:  record.Encrypted,
			Status:     models.StatusDelivered,
		})
	}

	return messages
}

// applyHistory runs on the loop.
func (e *Engine) applyHistory(roomID string, messages []models.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeRoomID != roomID {
		return
	}
	e.messages = messages
}

// plaintextOf returns the record content in decrypted form. A record that
// fails to decrypt keeps its raw content rather than vanishing.
func (e *Engine) plaintextOf(record models.MessageRecord) string {
	if !record.Encrypted {
		return record.Content
	}
	plaintext, err := e.cipher.Decrypt(record.Content, record.SenderID)
	if err != nil {
		e.log.Warn("decrypt failed", zap.String("message_id", record.ID), zap.Error(err))
		return record.Content
	}
	return plaintext
}

func resolveSenderName(identities map[string]models.Identity, senderID string) string {
	identity, ok := identities[senderID]
	if !ok {
		return models.UnknownSenderName
	}
	return identity.ResolveDisplayName()
}
