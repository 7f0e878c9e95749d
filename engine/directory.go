package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"roomsync/models"
)

// RefreshDirectory re-runs the room/membership bootstrap. This is the manual
// retry path after a bootstrap failure; nothing retries automatically.
func (e *Engine) RefreshDirectory() {
	go e.loadDirectory()
}

// loadDirectory fetches rooms and memberships, auto-joins the default room
// for a fresh identity, and annotates member counts. Any failure moves
// connectivity to disconnected.
func (e *Engine) loadDirectory() {
	ctx := context.Background()

	rooms, err := e.store.Rooms(ctx)
	if err != nil {
		e.post(func() { e.failBootstrap(fmt.Errorf("load rooms: %w", err)) })
		return
	}

	memberships, err := e.store.Memberships(ctx, e.identity.ID)
	if err != nil {
		e.post(func() { e.failBootstrap(fmt.Errorf("load memberships: %w", err)) })
		return
	}

	joined := make(map[string]bool, len(memberships))
	for _, m := range memberships {
		joined[m.RoomID] = true
	}

	// First use: bind the identity to the well-known default room.
	if len(joined) == 0 {
		defaultRoom, err := e.store.RoomByName(ctx, e.defaultRoom)
		if err != nil {
			e.post(func() { e.failBootstrap(fmt.Errorf("resolve default room %q: %w", e.defaultRoom, err)) })
			return
		}
		if err := e.store.AddMembership(ctx, defaultRoom.ID, e.identity.ID); err != nil {
			e.post(func() { e.failBootstrap(fmt.Errorf("join default room %q: %w", e.defaultRoom, err)) })
			return
		}
		joined[defaultRoom.ID] = true
		e.log.Info("auto-joined default room", zap.String("room", e.defaultRoom))
	}

	visible := make([]models.Room, 0, len(joined))
	for _, room := range rooms {
		if !joined[room.ID] {
			continue
		}
		count, err := e.store.CountMembers(ctx, room.ID)
		if err != nil {
			e.post(func() { e.failBootstrap(fmt.Errorf("count members of %q: %w", room.Name, err)) })
			return
		}
		room.MemberCount = count
		room.Joined = true
		visible = append(visible, room)
	}

	e.post(func() { e.applyDirectory(visible) })
}

// applyDirectory runs on the loop. Directory success counts as connected;
// auto-selecting the first room then re-enters connecting until the room's
// subscription acknowledges.
func (e *Engine) applyDirectory(rooms []models.Room) {
	e.mu.Lock()
	e.rooms = rooms
	e.connectivity = models.StateConnected
	active := e.activeRoomID
	e.mu.Unlock()

	e.log.Info("directory loaded", zap.Int("rooms", len(rooms)))

	if active == "" && len(rooms) > 0 {
		e.setActiveRoom(rooms[0].ID)
	}
}

// failBootstrap runs on the loop. Bootstrap failure is terminal for the
// session until a manual RefreshDirectory.
func (e *Engine) failBootstrap(err error) {
	e.mu.Lock()
	e.connectivity = models.StateDisconnected
	e.mu.Unlock()
	e.notify(OpBootstrap, err)
}
