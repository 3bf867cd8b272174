package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/workflow"
)

const (
	sendBuffer  = 16
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxReadSize = 512
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans workflow views out to the websocket connections of each session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}
	logger   *zap.Logger
}

// New returns an empty hub.
func New(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*client]struct{}),
		logger:   logger.Named("hub"),
	}
}

// Publish queues view for every connection of sessionID. It never blocks;
// a connection whose buffer is full is dropped.
func (h *Hub) Publish(sessionID string, view workflow.View) {
	message, err := json.Marshal(view)
	if err != nil {
		h.logger.Error("failed to encode view", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.sessions[sessionID] {
		select {
		case c.send <- message:
		default:
			h.logger.Warn("dropping slow websocket client", zap.String("session_id", sessionID))
			delete(h.sessions[sessionID], c)
			c.close()
		}
	}
}

// Serve attaches conn to sessionID, sends it the view returned by current
// and then blocks reading from conn until the peer goes away. current is
// read after the connection is attached so no transition is missed.
func (h *Hub) Serve(sessionID string, conn *websocket.Conn, current func() workflow.View) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.attach(sessionID, c)
	defer h.detach(sessionID, c)

	go h.writeLoop(c)
	h.sendTo(sessionID, c, current())

	conn.SetReadLimit(maxReadSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) sendTo(sessionID string, c *client, view workflow.View) {
	message, err := json.Marshal(view)
	if err != nil {
		h.logger.Error("failed to encode view", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[sessionID][c]; !ok {
		return
	}
	select {
	case c.send <- message:
	default:
		delete(h.sessions[sessionID], c)
		c.close()
	}
}

// CloseSession disconnects every connection of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	clients := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// Count reports the number of connections attached to sessionID.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) attach(sessionID string, c *client) {
	h.mu.Lock()
	clients, ok := h.sessions[sessionID]
	if !ok {
		clients = make(map[*client]struct{})
		h.sessions[sessionID] = clients
	}
	clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) detach(sessionID string, c *client) {
	h.mu.Lock()
	if clients, ok := h.sessions[sessionID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
