package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// DonationAlert is broadcast to dashboard clients when a donation settles.
type DonationAlert struct {
	DonorName string  `json:"donor_name"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	RankID    string  `json:"rank_id,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// Client is one connected dashboard socket.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts donation alerts to all connected clients.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan DonationAlert
}

// NewHub creates an alert hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan DonationAlert, 32),
	}
}

// Broadcast queues an alert for all connected clients. Never blocks the
// caller; alerts are dropped when the hub's buffer is full.
func (h *Hub) Broadcast(alert DonationAlert) {
	select {
	case h.broadcast <- alert:
	default:
		log.Warn().Msg("Alert hub buffer full, dropping donation alert")
	}
}

// Run processes hub events. Call in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Debug().Int("clients", len(h.clients)).Msg("WebSocket client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Debug().Int("clients", len(h.clients)).Msg("WebSocket client unregistered")
			}

		case alert := <-h.broadcast:
			data, err := json.Marshal(alert)
			if err != nil {
				log.Error().Err(err).Msg("Failed to marshal donation alert")
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard origins are enforced by the CORS layer; the socket itself
	// carries no privileged data.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a hub-connected websocket.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 16)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(45 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		// Clients never send application data; drain control frames.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
