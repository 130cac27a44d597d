package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/middleware"
	"adearn-backend/internal/models"
	"adearn-backend/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type   string      `json:"type"`
	UserID string      `json:"userId,omitempty"`
	Data   interface{} `json:"data"`
}

func balanceMessage(a *models.Account) *Message {
	return &Message{
		Type:   "BALANCE_UPDATE",
		UserID: a.ID,
		Data: gin.H{
			"balance":       a.Balance,
			"totalEarnings": a.TotalEarnings,
			"adsWatched":    a.AdsWatched,
		},
	}
}

type Client struct {
	UserID string
	conn   *websocket.Conn

	mu     sync.Mutex
	send   chan *Message
	closed bool
}

func newClient(userID string, conn *websocket.Conn) *Client {
	return &Client{UserID: userID, conn: conn, send: make(chan *Message, clientSendSize)}
}

// enqueue reports false when the client is gone or not keeping up.
func (c *Client) enqueue(msg *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
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

// Hub fans balance updates out to every connection of an account. It
// implements services.Broadcaster.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	log        *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
		done:       make(chan struct{}),
		log:        log,
	}
}

var _ services.Broadcaster = (*Hub)(nil)

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for client := range set {
					client.close()
				}
			}
			return

		case client := <-h.register:
			set, ok := h.clients[client.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.UserID] = set
			}
			set[client] = struct{}{}
			h.log.WithField("user_id", client.UserID).Debug("Client registered")

		case client := <-h.unregister:
			h.remove(client)
			h.log.WithField("user_id", client.UserID).Debug("Client unregistered")

		case msg := <-h.broadcast:
			for client := range h.clients[msg.UserID] {
				if !client.enqueue(msg) {
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	if set, ok := h.clients[client.UserID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	client.close()
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastBalance never blocks the caller; updates are dropped when the
// hub is saturated.
func (h *Hub) BroadcastBalance(account *models.Account) {
	select {
	case h.broadcast <- balanceMessage(account):
	default:
		h.log.WithField("user_id", account.ID).Warn("Balance update dropped")
	}
}

type WebSocketHandler struct {
	hub    *Hub
	ledger *services.Ledger
	log    *logrus.Entry
}

func NewWebSocketHandler(hub *Hub, ledger *services.Ledger, log *logrus.Entry) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, ledger: ledger, log: log}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := middleware.UserID(c)

	account, err := h.ledger.GetAccount(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Failed to upgrade to WebSocket")
		return
	}

	client := newClient(userID, conn)
	go client.writePump()

	client.enqueue(balanceMessage(account))
	if !h.hub.Register(client) {
		client.close()
		return
	}
	defer h.hub.Unregister(client)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).WithField("user_id", userID).Warn("WebSocket error")
			}
			return
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case "PING":
		client.enqueue(&Message{
			Type: "PONG",
			Data: gin.H{"timestamp": time.Now().Unix()},
		})
	case "GET_BALANCE":
		account, err := h.ledger.GetAccount(context.Background(), client.UserID)
		if err != nil {
			h.log.WithError(err).WithField("user_id", client.UserID).Warn("Failed to load balance for WebSocket")
			return
		}
		client.enqueue(balanceMessage(account))
	}
}
