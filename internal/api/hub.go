/*
Package api
File: hub.go
Description:
    The WebSocket Hub is the real-time side of the API.

    It keeps a registry of connected clients grouped by user. The session
    manager publishes 'state_pulse' messages through it, and each message is
    written only to the sockets of the user it belongs to.

    Clients may also send intents (click, buy_business, buy_upgrade) over the
    socket. They are applied through the same session as the REST routes and
    the result is written back to the sending client.

    Architecture:
    - Hub: one per server, run under the server's context.
    - Client: one browser connection of an authenticated user.
    - ServeWs: upgrades the HTTP request and starts the pumps.
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/everforgeworks/idle-tycoon/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message is the JSON envelope of every websocket frame.
type Message struct {
	Type    string `json:"type"`             // Event type (e.g., "state_pulse", "intent_result")
	Payload any    `json:"payload"`          // The actual data
	Sender  string `json:"sender,omitempty"` // Origin: "system" or a user id
}

// Intent is a client request sent over the socket.
type Intent struct {
	Type string `json:"type"`         // click, buy_business or buy_upgrade
	ID   string `json:"id,omitempty"` // Business or upgrade id
}

// IntentHandler applies an intent for uid and returns the reply payload.
type IntentHandler func(uid string, in Intent) Message

// Client is one connected browser tab.
type Client struct {
	hub  *Hub
	uid  string
	conn *websocket.Conn
	send chan []byte
}

type delivery struct {
	uid    string
	client *Client // nil delivers to every connection of uid
	data   []byte
}

// Hub fans messages out to the connections of each user.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	outbound   chan delivery
	done       chan struct{}

	onIntent IntentHandler
	metrics  *metrics.Economy
	logger   *zap.Logger
}

// NewHub creates a Hub. Call Run before serving connections.
func NewHub(m *metrics.Economy, logger *zap.Logger) *Hub {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan delivery, 256),
		done:       make(chan struct{}),
		metrics:    m,
		logger:     logger,
	}
}

// HandleIntents sets the function applied to client intents.
func (h *Hub) HandleIntents(fn IntentHandler) {
	h.onIntent = fn
}

// Run is the hub's event loop. It blocks until ctx is done and then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for client := range conns {
					h.drop(client)
				}
			}
			h.metrics.HubClients.Set(0)
			return nil

		case client := <-h.register:
			if h.clients[client.uid] == nil {
				h.clients[client.uid] = make(map[*Client]bool)
			}
			h.clients[client.uid][client] = true
			h.metrics.HubClients.Inc()
			h.logger.Debug("ws client registered", zap.String("user_id", client.uid))

		case client := <-h.unregister:
			if h.clients[client.uid][client] {
				h.drop(client)
			}

		case d := <-h.outbound:
			for client := range h.clients[d.uid] {
				if d.client != nil && d.client != client {
					continue
				}
				select {
				case client.send <- d.data:
				default:
					// Buffer full: the client hung or disconnected.
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	conns := h.clients[client.uid]
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.uid)
	}
	close(client.send)
	h.metrics.HubClients.Dec()
}

// Publish queues a message for every connection of uid. Messages are
// dropped when the hub is stopped or its queue is full.
func (h *Hub) Publish(uid, msgType string, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload, Sender: "system"})
	if err != nil {
		h.logger.Error("marshal ws message", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case h.outbound <- delivery{uid: uid, data: data}:
	case <-h.done:
	default:
		h.logger.Warn("ws queue full, message dropped", zap.String("user_id", uid), zap.String("type", msgType))
	}
}

// upgrader accepts connections from any origin, like the REST CORS policy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request of an authenticated user to a websocket.
func (h *Hub) ServeWs(uid string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := &Client{hub: h, uid: uid, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads intents until the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("ws read error", zap.String("user_id", c.uid), zap.Error(err))
			}
			return
		}

		var in Intent
		reply := Message{Type: "error", Payload: "malformed intent"}
		if err := json.Unmarshal(data, &in); err == nil && c.hub.onIntent != nil {
			reply = c.hub.onIntent(c.uid, in)
		}
		c.reply(reply)
	}
}

// reply queues msg for this client only.
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("marshal ws reply", zap.Error(err))
		return
	}
	select {
	case c.hub.outbound <- delivery{uid: c.uid, client: c, data: data}:
	case <-c.hub.done:
	}
}

// writePump writes queued messages until send is closed.
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		_, _ = w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
