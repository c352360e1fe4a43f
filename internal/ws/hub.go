package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/aaronlmathis/sparkwatch/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	logger *zap.Logger

	// Registered clients
	clients map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Mutex for thread-safety
	mu sync.RWMutex

	// Connection limits
	maxConnections int
	maxRoomSize    int
}

// Client represents a WebSocket client
type Client struct {
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Client identifier
	id string

	// Room the client is subscribed to, one per widget
	room string
}

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Room string      `json:"room,omitempty"`
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		logger:         logger,
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		clients:        make(map[*Client]bool),
		ctx:            ctx,
		cancel:         cancel,
		maxConnections: 1000,
		maxRoomSize:    100,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	defer h.cancel()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			metrics.RecordWebSocketConnection(client.room)
			h.logger.Info("Client registered",
				zap.String("id", client.id),
				zap.String("room", client.room))

		case client := <-h.unregister:
			if h.removeClient(client) {
				h.logger.Info("Client unregistered",
					zap.String("id", client.id),
					zap.String("room", client.room))
			}
		}
	}
}

// BroadcastToRoom sends a message to all clients in a specific room. Clients
// whose send buffer is full are dropped.
func (h *Hub) BroadcastToRoom(room string, messageType string, data interface{}) {
	msgBytes, err := encode(room, messageType, data)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	var slow []*Client
	sent := 0

	h.mu.RLock()
	for client := range h.clients {
		if client.room != room {
			continue
		}
		select {
		case client.send <- msgBytes:
			sent++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Removing unresponsive WebSocket client",
			zap.String("clientId", client.id),
			zap.String("room", room))
		h.removeClient(client)
	}

	if len(slow) > 0 {
		h.logger.Info("WebSocket broadcast completed with dropped clients",
			zap.String("room", room),
			zap.Int("sent", sent),
			zap.Int("dropped", len(slow)))
	}
}

// removeClient safely removes a client from the hub and reports whether it was registered
func (h *Hub) removeClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client]; !exists {
		return false
	}
	delete(h.clients, client)
	close(client.send)
	metrics.RecordWebSocketDisconnection(client.room)
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		metrics.RecordWebSocketDisconnection(client.room)
	}
}

// Stop stops the hub and closes every client
func (h *Hub) Stop() {
	h.cancel()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients subscribed to room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.clients {
		if client.room == room {
			n++
		}
	}
	return n
}

// ServeWS upgrades the request and subscribes the peer to room. When greeting
// is non-nil it is queued as the first message of type messageType.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, room, messageType string, greeting interface{}) {
	totalConnections := h.ClientCount()
	roomConnections := h.RoomSize(room)

	if totalConnections >= h.maxConnections {
		h.logger.Warn("WebSocket connection rejected - total connection limit reached",
			zap.Int("current", totalConnections),
			zap.Int("limit", h.maxConnections))
		http.Error(w, "Connection limit reached", http.StatusServiceUnavailable)
		return
	}

	if roomConnections >= h.maxRoomSize {
		h.logger.Warn("WebSocket connection rejected - room connection limit reached",
			zap.String("room", room),
			zap.Int("current", roomConnections),
			zap.Int("limit", h.maxRoomSize))
		http.Error(w, "Room connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.NewString(),
		room: room,
	}

	if greeting != nil {
		if msg, err := encode(room, messageType, greeting); err == nil {
			client.send <- msg
		} else {
			h.logger.Error("Failed to marshal greeting", zap.Error(err))
		}
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func encode(room, messageType string, data interface{}) ([]byte, error) {
	return json.Marshal(Message{
		Type: messageType,
		Data: data,
		Room: room,
	})
}

// readPump drains the connection so control frames are processed
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("Unexpected WebSocket close", zap.Error(err))
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one JSON document per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
