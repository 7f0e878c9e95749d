package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"roomsync/models"
	"roomsync/storage"
	"roomsync/stream"
)

func TestDirectoryAutoJoinsDefaultRoomAndSelectsIt(t *testing.T) {
	store := newTestStore(t)
	general := mustRoom(t, store, "general")
	mustRoom(t, store, "random")
	mustIdentity(t, store, "alice", "Alice", "alice@example.com")

	eng := startEngine(t, store, stream.NewBroker())

	waitFor(t, 2*time.Second, func() bool { return len(eng.Rooms()) > 0 }, "directory load")

	rooms := eng.Rooms()
	if len(rooms) != 1 {
		t.Fatalf("expected only the auto-joined room, got %+v", rooms)
	}
	if rooms[0].ID != general.ID || !rooms[0].Joined || rooms[0].MemberCount != 1 {
		t.Fatalf("unexpected default room entry: %+v", rooms[0])
	}

	waitFor(t, 2*time.Second, func() bool { return eng.ActiveRoomID() == general.ID }, "auto-select")

	memberships, err := store.Memberships(context.Background(), "alice")
	if err != nil {
		t.Fatalf("read memberships: %v", err)
	}
	if len(memberships) != 1 || memberships[0].RoomID != general.ID {
		t.Fatalf("membership not persisted: %+v", memberships)
	}
}

func TestDirectoryFailureDisconnects(t *testing.T) {
	store := newTestStore(t)
	eng := startEngine(t, &faultStore{Store: store, failRooms: true}, stream.NewBroker())

	notice := waitNotice(t, eng, OpBootstrap)
	if notice.Err == nil {
		t.Fatalf("expected bootstrap error")
	}

	waitFor(t, 2*time.Second, func() bool {
		return eng.Connectivity() == models.StateDisconnected
	}, "disconnected state")

	if len(eng.Rooms()) != 0 {
		t.Fatalf("room list must stay empty on bootstrap failure")
	}
	if eng.CanSend() {
		t.Fatalf("send must be disabled while disconnected")
	}
}

func TestSubmitOptimisticLifecycle(t *testing.T) {
	store := newTestStore(t)
	general := mustRoom(t, store, "general")
	mustIdentity(t, store, "alice", "Alice", "alice@example.com")
	mustMembership(t, store, general.ID, "alice")

	gated := newGatedStore(store)
	broker := stream.NewBroker()
	eng := startEngine(t, gated, broker)

	waitFor(t, 2*time.Second, func() bool { return eng.CanSend() }, "connected state")

	eng.Submit("hi")

	waitFor(t, 2*time.Second, func() bool {
		messages := eng.Messages()
		return len(messages) == 1 && messages[0].Status == models.StatusSending
	}, "pending entry")

	pending := eng.Messages()[0]
	if !strings.HasPrefix(pending.ID, "pending-") {
		t.Fatalf("pending entry must carry a temporary id, got %q", pending.ID)
	}
	if pending.Content != "hi" || pending.SenderName != "Alice" || pending.Encrypted {
		t.Fatalf("unexpected pending entry: %+v", pending)
	}

	close(gated.release)

	waitFor(t, 2*time.Second, func() bool {
		messages := eng.Messages()
		return len(messages) == 1 && messages[0].Status == models.StatusSent
	}, "sent transition")
	if eng.Messages()[0].ID != pending.ID {
		t.Fatalf("sent transition must happen in place, id changed")
	}

	record := <-gated.records
	if !record.Encrypted || record.Content == "hi" {
		t.Fatalf("persisted content must be ciphertext: %+v", record)
	}
	if record.ContentHash == "" {
		t.Fatalf("persisted record must carry a content hash")
	}

	broker.Publish(record)

	waitFor(t, 2*time.Second, func() bool {
		messages := eng.Messages()
		return len(messages) == 1 && messages[0].Status == models.StatusDelivered
	}, "echo reconciliation")

	echoed := eng.Messages()[0]
	if echoed.ID != record.ID {
		t.Fatalf("echo must adopt the durable id, got %q", echoed.ID)
	}
	if echoed.Content != "hi" {
		t.Fatalf("echo must decrypt back to the plaintext, got %q", echoed.Content)
	}
}

func TestEchoReplacesPendingInPlace(t *testing.T) {
	store := newTestStore(t)
	general := mustRoom(t, store, "general")
	mustIdentity(t, store, "alice", "Alice", "alice@example.com")
	mustIdentity(t, store, "bob", "Bob", "bob@example.com")
	mustMembership(t, store, general.ID, "alice")

	for _, content := range []string{"one", "two"} {
		if _, err := store.InsertMessage(context.Background(), storage.NewMessage{
			RoomID:   general.ID,
			SenderID: "bob",
			Content:  content,
		}); err != nil {
			t.Fatalf("seed history: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	broker := stream.NewBroker()
	eng := startEngine(t, &publishingStore{Store: store, broker: broker}, broker)

	waitFor(t, 2*time.Second, func() bool { return len(eng.Messages()) == 2 }, "history load")

	eng.Submit("three")

	waitFor(t, 2*time.Second, func() bool {
		messages := eng.Messages()
		return len(messages) == 3 && messages[2].Status == models.StatusDelivered
	}, "echo reconciliation")

	messages := eng.Messages()
	if messages[0].Content != "one" || messages[1].Content != "two" {
		t.Fatalf("history entries disturbed: %+v", messages)
	}
	if messages[2].Content != "three" || strings.HasPrefix(messages[2].ID, "pending-") {
		t.Fatalf("echo did not replace the pending entry: %+v", messages[2])
	}
}

func TestSubmitBlankContentIsNoOp(t *testing.T) {
	store := newTestStore(t)
	general := mustRoom(t, store, "general")
	mustIdentity(t, store, "alice", "Alice", "alice@example.com")
	mustMembership(t, store, general.ID, "alice")

	eng := startEngine(t, store, stream.NewBroker())
	waitFor(t, 2*time.Second, func() bool { return eng.CanSend() }, "connected state")

	eng.Submit("")
	eng.Submit("   \t\n")

	time.Sleep(100 * time.Millisecond)
	if got := len(eng.Messages()); got != 0 {
		t.Fatalf("blank submit must not append, got %d entries", got)
	}
}

func TestSubmitWithoutActiveRoomIsNoOp(t *testing.T) {
	// No rooms exist, so the bootstrap fails and no room ever activates.
	eng := startEngine(t, newTestStore(t), stream.NewBroker())
	waitFor(t, 2*time.Second, func() bool {
		return eng.Connectivity() == models.StateDisconnected
	}, "disconnected state")

	eng.Submit("hi")

	time.Sleep(100 * time.Millisecond)
	if got := len(eng.Messages()); got != 0 {
		t.Fatalf("submit without active room must not append, got %d entries", got)
	}
}

func TestSendFailureRemovesPendingEntry(t *testing.T) {
	store := newTestStore(t)
	general := mustRoom(t, store, "general")
	mustIdentity(t, store, "alice", "Alice", "alice@example.com")
	mustMembership(t, store, general.ID, "alice")

	eng := startEngine(t, &faultStore{Store: store, failInsert: true}, stream.NewBroker())
	waitFor(t, 2*time.Second, func() bool { return eng.CanSend() }, "connected state")

	eng.Submit("doomed")

	notice := waitNotice(t, eng, OpSend)
	if notice.Err == nil {
		t.Fatalf("expected send error")
	}
	waitFor(t, 2*time.Second, func() bool { return len(eng.Messages()) == 0 }, "pending rollback")
}

func TestHistoryWindowBoundedAndOrdered(t *testing.T) {
	store := newTestStore(t)
	general := mustRoom(t, store, "general")
	mustIdentity(t, store, "alice", "Alice", "alice@example.com")
	mustIdentity(t, store, "bob", "", "bob@example.com")
	mustMembership(t, store, general.ID, "alice")

	cipher := testCipher(t)
	for i := 0; i < 55; i++ {
		content := fmt.Sprintf("msg-%02d", i)
		encrypted := i == 54
		if encrypted {
			sealed, err := cipher.Encrypt(content, "bob")
			if err != nil {
				t.Fatalf("seal seed message: %v", err)
			}
			content = sealed
		}
		if _, err := store.InsertMessage(context.Background(), storage.NewMessage{
			RoomID:    general.ID,
			SenderID:  "bob",
			Content:   content,
			Encrypted: encrypted,
		}); err != nil {
			t.Fatalf("seed message %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	eng := startEngine(t, store, stream.NewBroker())

	waitFor(t, 4*time.Second, func() bool { return len(eng.Messages()) == 50 }, "history load")

	messages := eng.Messages()
	for i, msg := range messages {
		if msg.Status != models.StatusDelivered {
			t.Fatalf("history entry %d not delivered: %+v", i, msg)
		}
		if msg.SenderName != "bob" {
			t.Fatalf("expected email local-part fallback, got %q", msg.SenderName)
		}
		if i > 0 && msg.CreatedAt < messages[i-1].CreatedAt {
			t.Fatalf("history not ascending at index %d", i)
		}
	}
	if messages[0].Content != "msg-05" {
		t.Fatalf("window must keep the most recent entries, starts at %q", messages[0].Content)
	}
	if messages[49].Content != "msg-54" {
		t.Fatalf("encrypted entry must be decrypted for display, got %q", messages[49].Content)
	}
}

func TestRealtimeDeliveryResolvesSenders(t *testing.T) {
	store := newTestStore(t)
	general := mustRoom(t, store, "general")
	mustIdentity(t, store, "alice", "Alice", "alice@example.com")
	mustIdentity(t, store, "carol", "", "carol@x.com")
	mustMembership(t, store, general.ID, "alice")

	broker := stream.NewBroker()
	eng := startEngine(t, store, broker)
	waitFor(t, 2*time.Second, func() bool { return eng.CanSend() }, "connected state")

	broker.Publish(models.MessageRecord{
		ID: "m-carol", RoomID: general.ID, SenderID: "carol",
		Content: "hey", CreatedAt: time.Now().UnixMilli(),
	})
	broker.Publish(models.MessageRecord{
		ID: "m-ghost", RoomID: general.ID, SenderID: "ghost",
		Content: "boo", CreatedAt: time.Now().UnixMilli(),
	})

	waitFor(t, 2*time.Second, func() bool { return len(eng.Messages()) == 2 }, "stream delivery")

	messages := eng.Messages()
	if messages[0].SenderName != "carol" {
		t.Fatalf("expected email local-part fallback, got %q", messages[0].SenderName)
	}
	if messages[1].SenderName != models.UnknownSenderName {
		t.Fatalf("expected unknown-sender fallback, got %q", messages[1].SenderName)
	}
}

func TestRoomSwitchTearsDownPreviousSubscription(t *testing.T) {
	store := newTestStore(t)
	general := mustRoom(t, store, "general")
	random := mustRoom(t, store, "random")
	mustIdentity(t, store, "alice", "Alice", "alice@example.com")
	mustMembership(t, store, general.ID, "alice")
	mustMembership(t, store, random.ID, "alice")

	counting := &countingStream{inner: stream.NewBroker()}
	eng := startEngine(t, store, counting)

	waitFor(t, 2*time.Second, func() bool { return eng.CanSend() }, "initial subscription")
	if got := counting.cancelCount(); got != 0 {
		t.Fatalf("expected no cancels before switching, got %d", got)
	}

	eng.SelectRoom(random.ID)
	waitFor(t, 2*time.Second, func() bool {
		return eng.ActiveRoomID() == random.ID && eng.CanSend()
	}, "switch to random")
	if got := counting.cancelCount(); got != 1 {
		t.Fatalf("expected exactly 1 cancel after first switch, got %d", got)
	}

	eng.SelectRoom(general.ID)
	waitFor(t, 2*time.Second, func() bool {
		return eng.ActiveRoomID() == general.ID && eng.CanSend()
	}, "switch back to general")
	if got := counting.cancelCount(); got != 2 {
		t.Fatalf("expected exactly 2 cancels after second switch, got %d", got)
	}
}

func TestSelectUnknownRoomIgnored(t *testing.T) {
	store := newTestStore(t)
	general := mustRoom(t, store, "general")
	mustIdentity(t, store, "alice", "Alice", "alice@example.com")
	mustMembership(t, store, general.ID, "alice")

	eng := startEngine(t, store, stream.NewBroker())
	waitFor(t, 2*time.Second, func() bool { return eng.ActiveRoomID() == general.ID }, "auto-select")

	eng.SelectRoom("not-a-room")

	time.Sleep(100 * time.Millisecond)
	if eng.ActiveRoomID() != general.ID {
		t.Fatalf("unknown room must not change selection")
	}
}
