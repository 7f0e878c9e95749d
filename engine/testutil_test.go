package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roomsync/crypto"
	"roomsync/models"
	"roomsync/storage"
	"roomsync/stream"
)

var aliceIdentity = models.Identity{ID: "alice", DisplayName: "Alice", Email: "alice@example.com"}

func testCipher(t *testing.T) *crypto.BoxCipher {
	t.Helper()

	key := make([]byte, crypto.MasterKeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	cipher, err := crypto.NewBoxCipher(key)
	if err != nil {
		t.Fatalf("create test cipher: %v", err)
	}
	return cipher
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()

	store, _, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})
	return store
}

func mustRoom(t *testing.T, store storage.Store, name string) models.Room {
	t.Helper()

	room, err := store.CreateRoom(context.Background(), name)
	if err != nil {
		t.Fatalf("create room %q: %v", name, err)
	}
	return room
}

func mustIdentity(t *testing.T, store storage.Store, id, name, email string) {
	t.Helper()

	err := store.UpsertIdentity(context.Background(), models.Identity{ID: id, DisplayName: name, Email: email})
	if err != nil {
		t.Fatalf("upsert identity %q: %v", id, err)
	}
}

func mustMembership(t *testing.T, store storage.Store, roomID, identityID string) {
	t.Helper()

	if err := store.AddMembership(context.Background(), roomID, identityID); err != nil {
		t.Fatalf("add membership %q/%q: %v", roomID, identityID, err)
	}
}

func startEngine(t *testing.T, store storage.Store, str stream.Stream) *Engine {
	t.Helper()

	eng, err := New(Options{
		Identity: aliceIdentity,
		Store:    store,
		Stream:   str,
		Cipher:   testCipher(t),
		Hasher:   crypto.Blake2bHasher{},
	})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	t.Cleanup(eng.Stop)
	eng.Start()
	return eng
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitNotice(t *testing.T, eng *Engine, op string) Notice {
	t.Helper()

	for {
		select {
		case notice := <-eng.Notices():
			if notice.Op == op {
				return notice
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q notice", op)
		}
	}
}

// countingStream wraps another stream and counts subscription cancels.
type countingStream struct {
	inner stream.Stream

	mu      sync.Mutex
	cancels int
}

func (s *countingStream) Subscribe(ctx context.Context, roomID string) (stream.Subscription, error) {
	sub, err := s.inner.Subscribe(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &countingSubscription{Subscription: sub, parent: s}, nil
}

func (s *countingStream) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

type countingSubscription struct {
	stream.Subscription
	parent *countingStream
	once   sync.Once
}

func (s *countingSubscription) Cancel() error {
	s.once.Do(func() {
		s.parent.mu.Lock()
		s.parent.cancels++
		s.parent.mu.Unlock()
	})
	return s.Subscription.Cancel()
}

// publishingStore mirrors the realtime backend: every successful insert is
// broadcast to the broker.
type publishingStore struct {
	storage.Store
	broker *stream.Broker
}

func (s *publishingStore) InsertMessage(ctx context.Context, msg storage.NewMessage) (models.MessageRecord, error) {
	record, err := s.Store.InsertMessage(ctx, msg)
	if err == nil {
		s.broker.Publish(record)
	}
	return record, err
}

// gatedStore blocks inserts until released and hands the echoed record to
// the test instead of publishing it.
type gatedStore struct {
	storage.Store
	release chan struct{}
	records chan models.MessageRecord
}

func newGatedStore(inner storage.Store) *gatedStore {
	return &gatedStore{
		Store:   inner,
		release: make(chan struct{}),
		records: make(chan models.MessageRecord, 1),
	}
}

func (s *gatedStore) InsertMessage(ctx context.Context, msg storage.NewMessage) (models.MessageRecord, error) {
	<-s.release
	record, err := s.Store.InsertMessage(ctx, msg)
	if err == nil {
		s.records <- record
	}
	return record, err
}

// faultStore fails selected operations.
type faultStore struct {
	storage.Store
	failRooms  bool
	failInsert bool
}

func (s *faultStore) Rooms(ctx context.Context) ([]models.Room, error) {
	if s.failRooms {
		return nil, errors.New("rooms unavailable")
	}
	return s.Store.Rooms(ctx)
}

func (s *faultStore) InsertMessage(ctx context.Context, msg storage.NewMessage) (models.MessageRecord, error) {
	if s.failInsert {
		return models.MessageRecord{}, errors.New("insert rejected")
	}
	return s.Store.InsertMessage(ctx, msg)
}
