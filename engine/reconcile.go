package engine

import (
	"context"

	"go.uber.org/zap"

	"roomsync/models"
	"roomsync/stream"
)

// openSubscription establishes the room's insert subscription. A failure to
// subscribe leaves connectivity at connecting; a dropped stream is not
// distinguished from one that never came up.
func (e *Engine) openSubscription(roomID string) {
	sub, err := e.stream.Subscribe(context.Background(), roomID)
	if err != nil {
		e.log.Warn("subscribe failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}

	e.post(func() {
		if e.ActiveRoomID() != roomID {
			_ = sub.Cancel()
			return
		}
		e.adoptSubscription(sub)
		go e.pumpSubscription(roomID, sub)
	})
}

// adoptSubscription places sub into the owned slot. The slot is expected to
// be empty here because room changes tear down first, but a leftover is
// cancelled rather than leaked.
func (e *Engine) adoptSubscription(sub stream.Subscription) {
	e.subMu.Lock()
	prev := e.sub
	e.sub = sub
	e.subMu.Unlock()

	if prev != nil {
		_ = prev.Cancel()
	}
}

// teardownSubscription empties the owned slot and cancels the subscription.
// Idempotent: an empty slot is a no-op.
func (e *Engine) teardownSubscription() {
	e.subMu.Lock()
	sub := e.sub
	e.sub = nil
	e.subMu.Unlock()

	if sub != nil {
		_ = sub.Cancel()
	}
}

// pumpSubscription forwards acknowledgments and deliveries onto the loop
// until the subscription or the engine shuts down.
func (e *Engine) pumpSubscription(roomID string, sub stream.Subscription) {
	acks := sub.Acks()
	events := sub.Events()

	for acks != nil || events != nil {
		select {
		case state, ok := <-acks:
			if !ok {
				acks = nil
				continue
			}
			e.post(func() { e.applyAck(roomID, state) })
		case record, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.deliver(roomID, record)
		case <-e.closed:
			return
		}
	}
}

// applyAck runs on the loop. Only a subscribed acknowledgment counts as
// connected; every other state maps back to connecting. Disconnected stays
// terminal.
func (e *Engine) applyAck(roomID string, state stream.AckState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeRoomID != roomID || e.connectivity == models.StateDisconnected {
		return
	}
	if state == stream.AckSubscribed {
		e.connectivity = models.StateConnected
	} else {
		e.connectivity = models.StateConnecting
	}
}

// deliver resolves one inserted record (single identity lookup, decryption)
// off the loop, then posts the merge.
func (e *Engine) deliver(roomID string, record models.MessageRecord) {
	senderName := models.UnknownSenderName
	if identity, err := e.store.Identity(context.Background(), record.SenderID); err == nil {
		senderName = identity.ResolveDisplayName()
	}

	msg := models.Message{
		ID:         record.ID,
		RoomID:     record.RoomID,
		SenderID:   record.SenderID,
		SenderName: senderName,
		Content:    e.plaintextOf(record),
		CreatedAt:  record.CreatedAt,
		Encrypted:  record.Encrypted,
		Status:     models.StatusDelivered,
	}
	e.post(func() { e.merge(roomID, msg) })
}

// merge runs on the loop and applies the reconciliation rule: replace the
// first not-yet-authoritative entry with the same sender and exactly equal
// content at its existing position, otherwise append. There is no
// correlation id across the pending and persisted representations, so
// duplicate-content sends from the same sender close in time can mismatch.
func (e *Engine) merge(roomID string, msg models.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeRoomID != roomID || msg.RoomID != roomID {
		return
	}

	for i := range e.messages {
		if e.messages[i].ID == msg.ID {
			// Already authoritative, e.g. seen via both history and stream.
			return
		}
	}

	for i := range e.messages {
		entry := e.messages[i]
		if entry.SenderID == msg.SenderID && entry.Status != models.StatusDelivered && entry.Content == msg.Content {
			e.messages[i] = msg
			return
		}
	}

	e.messages = append(e.messages, msg)
}
