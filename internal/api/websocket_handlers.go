package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/entrepeneur4lyf/paycopilot/internal/events"
	"github.com/entrepeneur4lyf/paycopilot/internal/pipeline"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// EventClient is one WebSocket subscriber to stage events
type EventClient struct {
	conn   *websocket.Conn
	chatID string
	send   chan WebSocketMessage
	cancel context.CancelFunc
	once   sync.Once
}

func (c *EventClient) close() {
	c.once.Do(func() {
		c.cancel()
	})
}

// ConnectionManager tracks active WebSocket connections by chat id. The
// empty chat id holds clients subscribed to every conversation.
type ConnectionManager struct {
	clients map[string]map[*EventClient]struct{}
	mu      sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{clients: make(map[string]map[*EventClient]struct{})}
}

// Add registers a client
func (cm *ConnectionManager) Add(c *EventClient) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.clients[c.chatID] == nil {
		cm.clients[c.chatID] = make(map[*EventClient]struct{})
	}
	cm.clients[c.chatID][c] = struct{}{}
}

// Remove unregisters a client
func (cm *ConnectionManager) Remove(c *EventClient) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients[c.chatID], c)
	if len(cm.clients[c.chatID]) == 0 {
		delete(cm.clients, c.chatID)
	}
}

// CloseAll ends every subscription
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, set := range cm.clients {
		for c := range set {
			c.close()
		}
	}
}

// GetConnectionStats returns connection statistics
func (cm *ConnectionManager) GetConnectionStats() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	for _, set := range cm.clients {
		total += len(set)
	}
	return map[string]any{
		"connections":  total,
		"active_chats": len(cm.clients),
	}
}

// handleEventsWebSocket streams pipeline stage events. chat_id limits the
// stream to one conversation.
func (s *Server) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.StageEvents == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Event stream disabled", nil)
		return
	}
	chatID := r.URL.Query().Get("chat_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &EventClient{
		conn:   conn,
		chatID: chatID,
		send:   make(chan WebSocketMessage, 64),
		cancel: cancel,
	}
	s.connections.Add(client)
	s.logger.Debug("websocket client connected", "chat_id", chatID)

	sub := s.deps.StageEvents.Subscribe(ctx, events.ByChatID[pipeline.StageEvent](chatID))

	client.send <- WebSocketMessage{Type: "connected", Data: map[string]string{"chat_id": chatID}}

	go s.writePump(client, sub)
	go s.readPump(client)
}

// readPump handles incoming WebSocket messages until the peer goes away
func (s *Server) readPump(c *EventClient) {
	defer func() {
		c.close()
		s.connections.Remove(c)
		s.logger.Debug("websocket client disconnected", "chat_id", c.chatID)
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WebSocketMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		switch msg.Type {
		case "ping":
			c.enqueue(WebSocketMessage{Type: "pong", EventID: msg.EventID})
		default:
			c.enqueue(WebSocketMessage{Type: "error", Error: "Unknown message type", EventID: msg.EventID})
		}
	}
}

// writePump forwards stage events and replies to the client
func (s *Server) writePump(c *EventClient, sub <-chan events.Event[pipeline.StageEvent]) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			msg := WebSocketMessage{Type: string(ev.Type), Data: ev.Payload, EventID: ev.ID}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
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

// enqueue queues a reply, dropping it when the client is not keeping up
func (c *EventClient) enqueue(msg WebSocketMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

// handleWebSocketStats returns WebSocket connection statistics
func (s *Server) handleWebSocketStats(w http.ResponseWriter, r *http.Request) {
	stats := s.connections.GetConnectionStats()
	stats["timestamp"] = time.Now().Unix()
	if s.deps.StageEvents != nil {
		stats["broker"] = s.deps.StageEvents.Stats()
	}
	s.writeJSON(w, http.StatusOK, stats)
}
