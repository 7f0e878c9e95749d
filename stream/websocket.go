package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roomsync/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var _ Stream = (*WebSocketStream)(nil)

// WebSocketStream implements Stream against a realtime gateway speaking a
// small JSON protocol: the client sends a subscribe request for one room,
// the gateway acknowledges with a status frame, then pushes insert frames.
type WebSocketStream struct {
	url    string
	dialer *websocket.Dialer
}

// NewWebSocketStream dials gatewayURL for each subscription.
func NewWebSocketStream(gatewayURL string) *WebSocketStream {
	return &WebSocketStream{url: gatewayURL, dialer: websocket.DefaultDialer}
}

type wsRequest struct {
	Action string `json:"action"`
	RoomID string `json:"room_id"`
}

type wsFrame struct {
	Type   string                `json:"type"`
	Status string                `json:"status,omitempty"`
	Record *models.MessageRecord `json:"record,omitempty"`
}

// Subscribe dials the gateway and joins one room. The readiness ack follows
// the gateway's status reply.
func (s *WebSocketStream) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream gateway %q: %w", s.url, err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsRequest{Action: "subscribe", RoomID: roomID}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send subscribe for room %q: %w", roomID, err)
	}

	sub := &wsSubscription{
		conn:   conn,
		roomID: roomID,
		acks:   make(chan AckState, ackBuffer),
		events: make(chan models.MessageRecord, eventBuffer),
		done:   make(chan struct{}),
	}
	go sub.readPump()
	go sub.pingPump()

	return sub, nil
}

type wsSubscription struct {
	conn   *websocket.Conn
	roomID string
	acks   chan AckState
	events chan models.MessageRecord

	writeMu    sync.Mutex
	cancelOnce sync.Once
	done       chan struct{}
}

func (s *wsSubscription) readPump() {
	defer close(s.acks)
	defer close(s.events)

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame wsFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			s.sendAck(AckClosed)
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch frame.Type {
		case "status":
			if frame.Status == "subscribed" {
				s.sendAck(AckSubscribed)
			} else {
				s.sendAck(AckPending)
			}
		case "insert":
			if frame.Record == nil || frame.Record.RoomID != s.roomID {
				continue
			}
			select {
			case s.events <- *frame.Record:
			default:
			}
		}
	}
}

func (s *wsSubscription) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *wsSubscription) sendAck(state AckState) {
	select {
	case s.acks <- state:
	default:
	}
}

func (s *wsSubscription) Acks() <-chan AckState {
	return s.acks
}

func (s *wsSubscription) Events() <-chan models.MessageRecord {
	return s.events
}

// Cancel sends a best-effort unsubscribe and closes the connection. Safe to
// call more than once.
func (s *wsSubscription) Cancel() error {
	var err error
	s.cancelOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteJSON(wsRequest{Action: "unsubscribe", RoomID: s.roomID})
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
