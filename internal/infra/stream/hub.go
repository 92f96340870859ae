// Package stream pushes tick updates to websocket subscribers (the chart and
// card renderers live outside this process and consume this feed).
package stream

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/infra"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Hub fans each appended PricePoint out to connected clients.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Community app: same-origin policy is enforced upstream.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the request and registers the client until it hangs up.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	infra.GlobalMetrics.IncrementStreams()

	// Drain (and discard) client frames until the connection dies.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends a tick to every subscriber, dropping dead connections.
func (h *Hub) Broadcast(p domain.PricePoint) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteJSON(p); err != nil {
			h.drop(c)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	if ok {
		conn.Close()
		infra.GlobalMetrics.DecrementStreams()
	}
}
