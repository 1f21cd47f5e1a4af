package api

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/monitoring"
	"github.com/banshee-data/crosswalk/internal/stream"
)

// Websocket message types.
const (
	MsgWelcome      = "WELCOME"
	MsgDecision     = "DECISION"
	MsgSessionStart = "SESSION_START"
	MsgSessionStop  = "SESSION_STOP"
	MsgPing         = "PING"
	MsgPong         = "PONG"
)

const (
	clientQueue  = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Message is the websocket envelope.
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"ts"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans decisions and session changes out to websocket clients. A client
// whose queue is full misses messages rather than stalling the stream.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	nextID  atomic.Uint64
	dropped atomic.Uint64
}

var (
	_ stream.Listener  = (*Hub)(nil)
	_ stream.Lifecycle = (*Hub)(nil)
)

// NewHub returns an empty hub that accepts any origin.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// OnDecision implements stream.Listener.
func (h *Hub) OnDecision(ev crossing.Event) {
	h.broadcast(Message{Type: MsgDecision, Payload: ev, Timestamp: ev.Timestamp.UnixMilli()})
}

// OnSessionStart implements stream.Lifecycle.
func (h *Hub) OnSessionStart(info stream.SessionInfo) {
	h.broadcast(Message{Type: MsgSessionStart, Payload: info, Timestamp: info.StartedAt.UnixMilli()})
}

// OnSessionStop implements stream.Lifecycle.
func (h *Hub) OnSessionStop(info stream.SessionInfo) {
	h.broadcast(Message{Type: MsgSessionStop, Payload: info, Timestamp: info.StoppedAt.UnixMilli()})
}

func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, msg)
	}
}

// enqueue must be called with h.mu held; removal closes send under the
// write lock, so no send races a close.
func (h *Hub) enqueue(c *client, msg Message) {
	select {
	case c.send <- msg:
	default:
		h.dropped.Add(1)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
		c.close()
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade failed: %v", err)
		return
	}
	id := r.URL.Query().Get("clientId")
	if id == "" {
		id = "client-" + strconv.FormatUint(h.nextID.Add(1), 10)
	}
	c := &client{id: id, conn: conn, send: make(chan Message, clientQueue)}

	h.mu.Lock()
	if old, ok := h.clients[id]; ok {
		old.close()
	}
	h.clients[id] = c
	h.enqueue(c, Message{
		Type:      MsgWelcome,
		ClientID:  id,
		Timestamp: time.Now().UnixMilli(),
	})
	h.mu.Unlock()
	monitoring.Logf("api: websocket client connected: %s", id)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		monitoring.Logf("api: websocket client disconnected: %s", c.id)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Logf("api: websocket error for %s: %v", c.id, err)
			}
			return
		}
		if msg.Type == MsgPing {
			h.mu.RLock()
			if h.clients[c.id] == c {
				h.enqueue(c, Message{Type: MsgPong, ClientID: c.id, Timestamp: time.Now().UnixMilli()})
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
