package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"roomsync/models"
)

// DefaultChannelPrefix namespaces per-room pub/sub channels.
const DefaultChannelPrefix = "roomsync:room:"

var _ Stream = (*RedisStream)(nil)

// RedisStream implements Stream on Redis pub/sub with one channel per room.
type RedisStream struct {
	client        *redis.Client
	channelPrefix string
}

// NewRedisStream wraps an existing Redis client.
func NewRedisStream(client *redis.Client) *RedisStream {
	return &RedisStream{client: client, channelPrefix: DefaultChannelPrefix}
}

func (s *RedisStream) channel(roomID string) string {
	return s.channelPrefix + roomID
}

// Publish broadcasts an inserted record to the room's channel. The process
// that performs the store insert is expected to call this.
func (s *RedisStream) Publish(ctx context.Context, record models.MessageRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal stream record: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel(record.RoomID), payload).Err(); err != nil {
		return fmt.Errorf("publish to %q: %w", s.channel(record.RoomID), err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription for one room. The readiness ack is
// emitted once Redis confirms the SUBSCRIBE command.
func (s *RedisStream) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, s.channel(roomID))

	sub := &redisSubscription{
		pubsub: pubsub,
		acks:   make(chan AckState, ackBuffer),
		events: make(chan models.MessageRecord, eventBuffer),
	}
	go sub.pump(ctx)

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	acks   chan AckState
	events chan models.MessageRecord

	cancelOnce sync.Once
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.acks)
	defer close(s.events)

	// Receive blocks until the SUBSCRIBE confirmation (or an error) arrives;
	// only a confirmed subscription counts as ready.
	reply, err := s.pubsub.Receive(ctx)
	if err != nil {
		s.sendAck(AckClosed)
		return
	}
	switch reply.(type) {
	case *redis.Subscription:
		s.sendAck(AckSubscribed)
	default:
		s.sendAck(AckPending)
	}

	for msg := range s.pubsub.Channel() {
		var record models.MessageRecord
		if err := json.Unmarshal([]byte(msg.Payload), &record); err != nil {
			continue
		}
		select {
		case s.events <- record:
		default:
		}
	}

	s.sendAck(AckClosed)
}

func (s *redisSubscription) sendAck(state AckState) {
	select {
	case s.acks <- state:
	default:
	}
}

func (s *redisSubscription) Acks() <-chan AckState {
	return s.acks
}

func (s *redisSubscription) Events() <-chan models.MessageRecord {
	return s.events
}

// Cancel closes the pub/sub subscription. Safe to call more than once.
func (s *redisSubscription) Cancel() error {
	var err error
	s.cancelOnce.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
