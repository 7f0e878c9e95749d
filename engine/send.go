package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"roomsync/models"
	"roomsync/storage"
)

// pendingIDPrefix marks locally-generated temporary message ids.
const pendingIDPrefix = "pending-"

// Submit starts the optimistic send pipeline for one message. Blank content
// or an absent active room make it a no-op. The caller should clear its
// input immediately; the outcome arrives through the message list and, on
// failure, a send notice.
func (e *Engine) Submit(text string) {
	content := strings.TrimSpace(text)
	if content == "" {
		return
	}
	e.post(func() { e.appendPending(content) })
}

// appendPending runs on the loop: synthesize the pending entry, show it at
// the end of the list, then persist asynchronously.
func (e *Engine) appendPending(content string) {
	e.mu.Lock()
	roomID := e.activeRoomID
	if roomID == "" {
		e.mu.Unlock()
		return
	}

	pending := models.Message{
		ID:         pendingIDPrefix + uuid.NewString(),
		RoomID:     roomID,
		SenderID:   e.identity.ID,
		SenderName: e.identity.ResolveDisplayName(),
		Content:    content,
		CreatedAt:  time.Now().UnixMilli(),
		Encrypted:  false,
		Status:     models.StatusSending,
	}
	e.messages = append(e.messages, pending)
	e.mu.Unlock()

	go e.persistMessage(roomID, pending.ID, content)
}

// persistMessage encrypts, hashes, and inserts one message, then transitions
// or rolls back its pending entry.
func (e *Engine) persistMessage(roomID, tempID, content string) {
	ctx := context.Background()

	ciphertext, err := e.cipher.Encrypt(content, e.identity.ID)
	if err != nil {
		e.post(func() { e.failSend(roomID, tempID, fmt.Errorf("encrypt message: %w", err)) })
		return
	}

	_, err = e.store.InsertMessage(ctx, storage.NewMessage{
		RoomID:      roomID,
		SenderID:    e.identity.ID,
		Content:     ciphertext,
		ContentHash: e.hasher.Hash(content),
		Encrypted:   true,
	})
	if err != nil {
		e.post(func() { e.failSend(roomID, tempID, fmt.Errorf("persist message: %w", err)) })
		return
	}

	e.post(func() { e.markSent(roomID, tempID) })
}

// markSent runs on the loop: sending -> sent in place. The entry may already
// have been replaced by its authoritative echo, which is fine.
func (e *Engine) markSent(roomID, tempID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeRoomID != roomID {
		return
	}
	for i := range e.messages {
		if e.messages[i].ID == tempID {
			e.messages[i].Status = models.StatusSent
			return
		}
	}
}

// failSend runs on the loop: remove the pending entry and report once. The
// already-cleared input is not restored.
func (e *Engine) failSend(roomID, tempID string, err error) {
	e.mu.Lock()
	if e.activeRoomID == roomID {
		for i := range e.messages {
			if e.messages[i].ID == tempID {
				e.messages = append(e.messages[:i], e.messages[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()

	e.notify(OpSend, err)
}
