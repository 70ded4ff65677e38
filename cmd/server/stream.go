package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/hip3-venue/internal/model"
	"github.com/yourorg/hip3-venue/internal/pool"
)

// streamMessage is one push frame: either a new oracle state or a new pool
// snapshot, tagged by Type.
type streamMessage struct {
	Type  string             `json:"type"`
	State *model.OracleState `json:"state,omitempty"`
	Pool  *pool.Pool         `json:"pool,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The venue has no browser origin policy; snapshots are public reads.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	// clientBuffer is per-subscriber; slow consumers are dropped rather
	// than allowed to stall the broadcast fan-out
	clientBuffer = 16
)

type streamClient struct {
	conn *websocket.Conn
	send chan streamMessage
}

// streamHub fans oracle and pool updates out to websocket subscribers.
type streamHub struct {
	register   chan *streamClient
	unregister chan *streamClient
	messages   chan streamMessage
	clients    map[*streamClient]struct{}

	// onCount, when set, is told the subscriber count after every change
	onCount func(float64)
}

func newStreamHub() *streamHub {
	return &streamHub{
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		messages:   make(chan streamMessage, 64),
		clients:    make(map[*streamClient]struct{}),
	}
}

func (h *streamHub) run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.reportCount()
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.reportCount()
			}
		case msg := <-h.messages:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					delete(h.clients, client)
					close(client.send)
					h.reportCount()
				}
			}
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*streamClient]struct{})
			return
		}
	}
}

func (h *streamHub) reportCount() {
	if h.onCount != nil {
		h.onCount(float64(len(h.clients)))
	}
}

// broadcast enqueues a message for all subscribers; it never blocks the
// caller.
func (h *streamHub) broadcast(msg streamMessage) {
	select {
	case h.messages <- msg:
	default:
		logrus.Warn("Stream backlog full, dropping update")
	}
}

// handleStream upgrades the connection and streams oracle/pool updates. The
// first frame is the current oracle state so subscribers render immediately.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	client := &streamClient{conn: conn, send: make(chan streamMessage, clientBuffer)}

	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()
	client.send <- streamMessage{Type: "oracle", State: &state}

	s.hub.register <- client

	go client.writeLoop()
	go client.readLoop(s.hub)
}

func (c *streamClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains inbound frames so pings/pongs and close handshakes are
// processed; the stream is one-directional otherwise.
func (c *streamClient) readLoop(hub *streamHub) {
	defer func() {
		hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
