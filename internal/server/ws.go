package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/nayana/internal/logging"
	"github.com/ayusman/nayana/internal/record"
)

const (
	// clientBuffer is the number of records queued per client before
	// records are dropped for it.
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// RecordsHub broadcasts frame records as JSON text messages to WebSocket
// clients. Broadcast never blocks the capture loop; a slow client loses
// records instead.
type RecordsHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewRecordsHub creates an empty hub.
func NewRecordsHub() *RecordsHub {
	return &RecordsHub{clients: make(map[*wsClient]struct{})}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *RecordsHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}

	go h.writer(c)

	// Reads only detect the peer closing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
}

// Broadcast queues rec for every connected client.
func (h *RecordsHub) Broadcast(rec record.FrameRecord) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(rec)
	if err != nil {
		logging.Error(logging.Fields{"error": err.Error()}, "failed to encode record")
		return
	}

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			logging.Debug(logging.Fields{"frame": rec.FrameNumber}, "websocket client too slow, record dropped")
		}
	}
}

// Clients returns the number of connected clients.
func (h *RecordsHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *RecordsHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *RecordsHub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *RecordsHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// writer drains the client queue until it is closed.
func (h *RecordsHub) writer(c *wsClient) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.unregister(c)
			// Drain until unregister closes the queue.
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
