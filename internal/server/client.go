package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsClient adapts one gorilla connection to the hub.Conn contract. Sends
// are enqueued on a buffered channel drained by writePump, which keeps
// delivery FIFO per connection.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSClient(conn *websocket.Conn, bufSize int) *wsClient {
	return &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, bufSize),
		done: make(chan struct{}),
	}
}

func (c *wsClient) ID() string { return c.id }

// Send enqueues one outbound frame. It fails when the connection is
// closed or the client is too slow to drain its queue; the hub treats
// either as fatal for this connection.
func (c *wsClient) Send(data []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("send queue full")
	}
}

// Close releases the write pump and the underlying connection. Safe to
// call multiple times.
func (c *wsClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// readPump consumes client messages until the transport closes or
// errors; either path unregisters the connection. There is no separate
// idle timeout: liveness relies on the periodic ping and the transport's
// own close/error signaling.
func (s *Server) readPump(c *wsClient) {
	defer func() {
		s.hub.Unregister(c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(s.maxMessageSize)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ws: read error", "conn_id", c.id, "error", err)
			}
			return
		}
		s.dispatch(c, raw)
	}
}

// writePump drains the outbound queue and keeps the connection alive
// with a periodic ping.
func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame. Raw heartbeat strings are answered
// immediately, before JSON parsing; everything else goes through the
// message-type switch. Protocol errors go back to this connection only.
func (s *Server) dispatch(c *wsClient, raw []byte) {
	if text := string(raw); text == "heartbeat" || text == "ping" {
		_ = c.Send([]byte("pong"))
		return
	}

	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendJSON(c, wsError{Type: "error", Message: "Invalid message format"})
		return
	}

	now := time.Now().UTC()
	switch msg.Type {
	case msgSubscribe:
		updated := s.hub.Subscribe(c.id, msg.TripIDs)
		s.sendJSON(c, ack{Type: "subscription_confirmed", TripIDs: updated, Timestamp: now})
		s.pushSnapshots(c, msg.TripIDs)

	case msgUnsubscribe:
		updated := s.hub.Unsubscribe(c.id, msg.TripIDs)
		s.sendJSON(c, ack{Type: "unsubscription_confirmed", TripIDs: updated, Timestamp: now})

	case msgSubscribeEvents:
		updated := s.hub.SubscribeEvents(c.id, msg.EventTypes, msg.Filters)
		s.sendJSON(c, ack{Type: "event_subscription_confirmed", EventTypes: updated, Filters: msg.Filters, Timestamp: now})

	case msgUnsubscribeEvents:
		updated := s.hub.UnsubscribeEvents(c.id, msg.EventTypes)
		s.sendJSON(c, ack{Type: "event_unsubscription_confirmed", EventTypes: updated, Timestamp: now})

	case msgHeartbeat:
		s.sendJSON(c, ack{Type: "heartbeat_response", Timestamp: now})

	default:
		s.sendJSON(c, wsError{Type: "error", Message: fmt.Sprintf("Unknown message type: %s", msg.Type)})
	}
}

// pushSnapshots sends one UpdateEvent-shaped message per known trip in
// tripIDs, so a fresh subscriber sees present state before any deltas.
func (s *Server) pushSnapshots(c *wsClient, tripIDs []string) {
	if s.states == nil {
		return
	}
	for _, id := range tripIDs {
		st, ok := s.states.Lookup(context.Background(), id)
		if !ok {
			continue
		}
		s.sendJSON(c, st.Snapshot())
	}
}

func (s *Server) sendJSON(c *wsClient, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("ws: marshal reply", "conn_id", c.id, "error", err)
		return
	}
	if err := c.Send(payload); err != nil {
		s.logger.Warn("ws: reply dropped", "conn_id", c.id, "error", err)
	}
}
