package web

import (
	"context"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub fans published frames out to every connected websocket viewer. A
// viewer whose send buffer is full gets dropped; the publisher is never
// back-pressured by a slow browser.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	clients    map[*client]bool
	logger     *zap.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

const clientSendBuffer = 8

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *client, 10),
		unregister: make(chan *client, 10),
		broadcast:  make(chan []byte, 100),
		clients:    make(map[*client]bool),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Info("[web] viewer connected", zap.Int("viewers", len(h.clients)))

		case c := <-h.unregister:
			h.drop(c)

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// viewer can't keep up with the frame cadence
					h.logger.Warn("[web] dropping slow viewer")
					h.drop(c)
				}
			}

		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			h.logger.Info("[web] hub shut down")
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Broadcast queues a frame for every viewer. It never blocks: if the hub
// itself is saturated the frame is simply skipped, a fresher one is at most
// one tick away.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer c.conn.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.unregister <- c
			return
		}
	}
}
