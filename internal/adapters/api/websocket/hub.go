package websocket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/username/chatkit/internal/domain/ports"
	"github.com/username/chatkit/internal/pkg/constants"
	"github.com/username/chatkit/internal/pkg/logutil"
)

// Hub fans chat events out to WebSocket clients. It subscribes once to the
// full event stream on the bus and forwards each event to every connected
// client whose filter matches.
type Hub struct {
	messaging ports.MessagingPort
	logger    *logutil.FieldLogger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan ports.Event
	done       chan struct{}
	mu         sync.RWMutex
}

// Client represents a single WebSocket connection. A non-empty
// ConversationID restricts delivery to that conversation's events; system
// events are delivered to everyone.
type Client struct {
	ID             string
	ConversationID string
	Conn           *websocket.Conn
	Send           chan ports.Event
	Hub            *Hub
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins in local use.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// NewHub creates a hub reading from the given messaging port.
func NewHub(messaging ports.MessagingPort) *Hub {
	return &Hub{
		messaging:  messaging,
		logger:     logutil.WithFields(logutil.Fields{"component": "websocket"}),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan ports.Event, 64),
		done:       make(chan struct{}),
	}
}

// Start subscribes to the event stream and runs the hub loop until ctx is
// cancelled.
func (h *Hub) Start(ctx context.Context) error {
	if h.messaging != nil {
		err := h.messaging.Subscribe(ctx, ports.SubjectAllEvents, func(ctx context.Context, subject string, data []byte) error {
			var event ports.Event
			if err := json.Unmarshal(data, &event); err != nil {
				return err
			}
			select {
			case h.broadcast <- event:
			default:
				h.logger.Warn("broadcast buffer full, dropping event", logutil.Fields{"subject": subject})
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	go h.run(ctx)
	return nil
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client connected", logutil.Fields{"client_id": client.ID, "conversation_id": client.ConversationID})

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)

		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.closeAll()
			// Unblocks client goroutines still trying to register or
			// unregister after the loop has stopped receiving.
			close(h.done)
			return
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		h.logger.Debug("client disconnected", logutil.Fields{"client_id": client.ID})
	}
}

func (h *Hub) broadcastEvent(event ports.Event) {
	// Write lock: slow consumers are removed from the map while iterating.
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.Send <- event:
		default:
			// Slow consumer; drop the connection rather than block
			// everyone else.
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.Send)
		delete(h.clients, client)
	}
}

// wants reports whether the event passes the client's conversation filter.
func (c *Client) wants(event ports.Event) bool {
	if c.ConversationID == "" || event.ConversationID == "" {
		return true
	}
	return event.ConversationID == c.ConversationID
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetStats returns connection statistics for the system endpoints.
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	filtered := 0
	for client := range h.clients {
		if client.ConversationID != "" {
			filtered++
		}
	}

	return map[string]interface{}{
		"total_connections":    len(h.clients),
		"filtered_connections": filtered,
		"timestamp":            time.Now(),
	}
}

// HandleWebSocket upgrades the request and registers the client. The
// optional conversation_id query parameter scopes delivery.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", logutil.Fields{"error": err.Error()})
		return
	}

	client := &Client{
		ID:             generateClientID(),
		ConversationID: c.Query("conversation_id"),
		Conn:           conn,
		Send:           make(chan ports.Event, 256),
		Hub:            h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// drop hands the client back to the hub loop, or closes it out directly
// when the hub has already shut down.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readPump drains the connection so control frames are processed. Clients
// only send pings; everything else is ignored.
func (c *Client) readPump() {
	defer func() {
		c.Hub.drop(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Debug("read error", logutil.Fields{"client_id": c.ID, "error": err.Error()})
			}
			return
		}
	}
}

// writePump serializes events onto the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if err := json.NewEncoder(w).Encode(event); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func generateClientID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return time.Now().Format("20060102150405") + "-" + hex.EncodeToString(b)
}
