package models

// Room is a chat room the engine can synchronize against.
// MemberCount and Joined are derived during directory load, not stored.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CreatedAt   int64  `json:"created_at"`
	MemberCount int    `json:"member_count"`
	Joined      bool   `json:"joined"`
}

// Membership binds one identity to one room.
type Membership struct {
	RoomID     string `json:"room_id"`
	IdentityID string `json:"identity_id"`
}

// DefaultRoomName is the well-known room a fresh identity is auto-joined to.
const DefaultRoomName = "general"
