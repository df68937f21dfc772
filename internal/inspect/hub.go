package inspect

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/runtime/object"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024
)

// EventMessage is the JSON form of a runtime event sent to websocket clients
type EventMessage struct {
	Event    string    `json:"event"`
	Type     string    `json:"type"`
	ObjectID string    `json:"object_id,omitempty"`
	Property string    `json:"property,omitempty"`
	Signal   string    `json:"signal,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	Time     time.Time `json:"time"`
}

func newEventMessage(e object.Event) *EventMessage {
	m := &EventMessage{
		Event:    e.Type.String(),
		Type:     e.TypeName,
		Property: e.Property,
		Signal:   e.Signal,
		Detail:   e.Detail,
		Time:     time.Now().UTC(),
	}
	if e.ObjectID != uuid.Nil {
		m.ObjectID = e.ObjectID.String()
	}
	return m
}

// Hub fans runtime events out to websocket clients
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *EventMessage

	upgrader websocket.Upgrader
	logger   *zap.Logger

	dropped atomic.Int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. Start must be called before clients connect.
func NewHub(ctx context.Context, logger *zap.Logger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		broadcast:  make(chan *EventMessage, 1024),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
		ctx:    hubCtx,
		cancel: cancel,
	}
}

// OnObjectEvent implements object.Observer. Events are dropped when the
// broadcast buffer is full.
func (h *Hub) OnObjectEvent(e object.Event) {
	select {
	case h.broadcast <- newEventMessage(e):
	default:
		h.dropped.Add(1)
	}
}

// Dropped returns the number of events dropped because the hub was busy
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Start runs the event loop in a new goroutine
func (h *Hub) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.Run()
	}()
}

// Run is the hub's main event loop. It returns when the hub is shut down.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			h.cleanup()
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			h.logger.Debug("event client registered",
				zap.String("client", client.ID),
				zap.Int("total", h.ClientCount()))

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed.Store(true)
				close(client.send)
			}
			h.clientsMu.Unlock()
			h.logger.Debug("event client unregistered",
				zap.String("client", client.ID),
				zap.Int("total", h.ClientCount()))

		case message := <-h.broadcast:
			h.broadcastToAll(message)
		}
	}
}

func (h *Hub) broadcastToAll(message *EventMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Warn("failed to marshal event", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for client := range h.clients {
		if !client.wants(message) {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Debug("skipping event client, send channel full", zap.String("client", client.ID))
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket that streams events. The
// optional type query parameter restricts the stream to one type name.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.New().String(), conn, h, r.URL.Query().Get("type"))
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) cleanup() {
	h.clientsMu.Lock()
	for client := range h.clients {
		client.closed.Store(true)
		client.conn.Close()
	}
	h.clients = make(map[*Client]bool)
	h.clientsMu.Unlock()
}

// Shutdown disconnects every client and stops the hub
func (h *Hub) Shutdown() {
	h.cancel()
	h.wg.Wait()
}

// Client is a websocket connection receiving events
type Client struct {
	ID string

	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	filter string
	closed atomic.Bool
}

func newClient(id string, conn *websocket.Conn, hub *Hub, filter string) *Client {
	return &Client{
		ID:     id,
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, 256),
		filter: filter,
	}
}

func (c *Client) wants(m *EventMessage) bool {
	return c.filter == "" || c.filter == m.Type
}

// readPump discards client input and detects disconnects
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket error", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.hub.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
