package stream

import (
	"context"
	"sync"

	"roomsync/models"
)

const (
	ackBuffer   = 4
	eventBuffer = 64
)

var _ Stream = (*Broker)(nil)

// Broker is an in-process Stream for single-binary deployments and tests.
// Publish fans a record out to every subscription of its room.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*brokerSubscription]struct{}
}

// NewBroker returns an empty in-process broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*brokerSubscription]struct{})}
}

// Subscribe registers a subscription for one room. The readiness ack is
// delivered immediately since no transport is involved.
func (b *Broker) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	sub := &brokerSubscription{
		broker: b,
		roomID: roomID,
		acks:   make(chan AckState, ackBuffer),
		events: make(chan models.MessageRecord, eventBuffer),
	}

	b.mu.Lock()
	room := b.subs[roomID]
	if room == nil {
		room = make(map[*brokerSubscription]struct{})
		b.subs[roomID] = room
	}
	room[sub] = struct{}{}
	b.mu.Unlock()

	sub.acks <- AckSubscribed
	return sub, nil
}

// Publish fans a record out to the subscriptions of its room. Slow
// subscribers drop events rather than block the publisher.
func (b *Broker) Publish(record models.MessageRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[record.RoomID] {
		select {
		case sub.events <- record:
		default:
		}
	}
}

func (b *Broker) remove(sub *brokerSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.subs[sub.roomID]
	if room == nil {
		return
	}
	delete(room, sub)
	if len(room) == 0 {
		delete(b.subs, sub.roomID)
	}
}

type brokerSubscription struct {
	broker *Broker
	roomID string
	acks   chan AckState
	events chan models.MessageRecord

	cancelOnce sync.Once
}

func (s *brokerSubscription) Acks() <-chan AckState {
	return s.acks
}

func (s *brokerSubscription) Events() <-chan models.MessageRecord {
	return s.events
}

// Cancel detaches the subscription from the broker. Safe to call more than
// once.
func (s *brokerSubscription) Cancel() error {
	s.cancelOnce.Do(func() {
		s.broker.remove(s)
		// Publish holds the broker lock, so after remove nothing can still
		// send on these channels.
		select {
		case s.acks <- AckClosed:
		default:
		}
		close(s.acks)
		close(s.events)
	})
	return nil
}
