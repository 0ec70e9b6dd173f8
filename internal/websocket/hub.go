package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Progress subscribers only send control messages.
	maxMessageSize = 4 * 1024

	sendBuffer = 32

	statusTimeout = 5 * time.Second
)

// SessionSource answers status requests of subscribers
type SessionSource interface {
	GetSession(ctx context.Context, sessionID string) (*entities.Session, error)
}

// Hub fans pipeline events out to the websocket subscribers of each
// consultation session. One session may be watched from several tabs.
type Hub struct {
	// Registered clients, by session.
	clients map[string]map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	sessions SessionSource

	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHub creates a new WebSocket hub. An empty allowedOrigins list accepts any origin.
func NewHub(allowedOrigins []string, m *metrics.Metrics, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     originChecker(allowedOrigins),
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	return h
}

// SetSessionSource enables status requests. The hub is built before the
// service that publishes through it, so the source is attached afterwards.
func (h *Hub) SetSessionSource(src SessionSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = src
}

// status snapshots the session for a status request
func (h *Hub) status(sessionID string) interface{} {
	h.mu.RLock()
	src := h.sessions
	h.mu.RUnlock()
	if src == nil {
		return CreateErrorMessage("status_unavailable", "session status is not available", "")
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	session, err := src.GetSession(ctx, sessionID)
	if err != nil {
		return CreateErrorMessage("status_unavailable", "session status is not available", err.Error())
	}
	return CreateStatusMessage(session.ID, string(session.State), session.Result != nil)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.sessionID] == nil {
				h.clients[client.sessionID] = make(map[*Client]bool)
			}
			h.clients[client.sessionID][client] = true
			h.mu.Unlock()
			h.metrics.ClientConnected()
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.remove(client)

		case <-h.done:
			h.mu.Lock()
			for sessionID, set := range h.clients {
				for client := range set {
					close(client.send)
					h.metrics.ClientDisconnected()
				}
				delete(h.clients, sessionID)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop closes every client and ends Run
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.sessionID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.sessionID)
	}
	close(client.send)
	h.metrics.ClientDisconnected()
	h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))
}

// Publish marshals message to JSON and queues it for every subscriber of the
// session. Slow subscribers are dropped instead of blocking the pipeline.
func (h *Hub) Publish(sessionID string, message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.String("sessionID", sessionID), zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for client := range h.clients[sessionID] {
		select {
		case client.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Dropping slow client", zap.String("sessionID", sessionID))
		h.remove(client)
	}
}

// sendTo queues data for a registered client without blocking. The read lock
// keeps the hub from closing send concurrently.
func (h *Hub) sendTo(client *Client, data WriteData) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client.sessionID][client] {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

// Subscribers returns the number of clients watching a session
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Disconnect closes every subscriber of a session
func (h *Hub) Disconnect(sessionID string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[sessionID]))
	for client := range h.clients[sessionID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.remove(client)
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Consultation session this client follows
	sessionID string

	validator *MessageValidator
	logger    *zap.Logger
}

// HandleWebSocketWithAuth upgrades the request for an already authorized session
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, sessionID string, logger *zap.Logger) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, sendBuffer),
		sessionID: sessionID,
		validator: NewMessageValidator(),
		logger:    logger.With(zap.String("sessionID", sessionID)),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
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
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unexpected message type", zap.Int("type", messageType))
			continue
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
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

// processMessage answers pings and status requests; anything else gets an error message
func (c *Client) processMessage(message []byte) {
	var reply interface{}

	parsed, err := c.validator.ValidateMessage(message)
	if err != nil {
		reply = CreateErrorMessage("invalid_message", err.Error(), "")
	} else {
		switch msg := parsed.(type) {
		case *PingMessage:
			reply = CreatePongMessage(msg.Data)
		case *StatusRequest:
			reply = c.hub.status(c.sessionID)
		}
	}
	if reply == nil {
		return
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		c.logger.Error("Failed to marshal reply", zap.Error(err))
		return
	}

	if !c.hub.sendTo(c, WriteData{Type: websocket.TextMessage, Payload: payload}) {
		c.logger.Warn("Dropping reply to unregistered or slow client")
	}
}
