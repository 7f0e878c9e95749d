package models

// MessageStatus is the local delivery lifecycle of a visible message.
type MessageStatus string

const (
	// StatusSending marks a locally-synthesized entry whose persistence is
	// still in flight.
	StatusSending MessageStatus = "sending"
	// StatusSent marks a local entry that persisted successfully but has not
	// yet been observed on the event stream.
	StatusSent MessageStatus = "sent"
	// StatusDelivered marks an authoritative entry fetched from the store or
	// delivered by the event stream.
	StatusDelivered MessageStatus = "delivered"
)

// Message is one entry of the visible, ordered message list. Content is
// always plaintext here; encryption applies only at the store boundary.
type Message struct {
	ID         string        `json:"id"`
	RoomID     string        `json:"room_id"`
	SenderID   string        `json:"sender_id"`
	SenderName string        `json:"sender_name"`
	Content    string        `json:"content"`
	CreatedAt  int64         `json:"created_at"`
	Encrypted  bool          `json:"encrypted"`
	Status     MessageStatus `json:"status"`
}

// Authoritative reports whether the entry came from the store or stream
// rather than a local optimistic append.
func (m Message) Authoritative() bool {
	return m.Status == StatusDelivered
}

// MessageRecord is the store and wire representation of a message: content
// may be ciphertext and the sender is referenced by id only. Store reads,
// insert echoes, and stream notifications all share this shape.
type MessageRecord struct {
	ID          string `json:"id"`
	RoomID      string `json:"room_id"`
	SenderID    string `json:"sender_id"`
	Content     string `json:"content"`
	ContentHash string `json:"content_hash"`
	Encrypted   bool   `json:"encrypted"`
	CreatedAt   int64  `json:"created_at"`
}
