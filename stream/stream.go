// Package stream delivers room-scoped message insert notifications to the
// sync engine. A subscription surfaces readiness acknowledgments separately
// from per-message delivery so connectivity can key off the former.
package stream

import (
	"context"

	"roomsync/models"
)

// AckState is a subscription readiness acknowledgment.
type AckState string

const (
	// AckSubscribed means the stream confirmed the room subscription; only
	// this state counts as connected.
	AckSubscribed AckState = "subscribed"
	// AckPending covers every non-ready acknowledgment the transport emits.
	AckPending AckState = "pending"
	// AckClosed is emitted when the subscription shuts down.
	AckClosed AckState = "closed"
)

// Subscription is one live room subscription. Events and Acks are closed
// after Cancel; Cancel is idempotent.
type Subscription interface {
	Acks() <-chan AckState
	Events() <-chan models.MessageRecord
	Cancel() error
}

// Stream opens room-scoped subscriptions.
type Stream interface {
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}
