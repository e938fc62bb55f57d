package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/miradorstack/equipment-monitor/internal/metrics"
	"github.com/miradorstack/equipment-monitor/internal/models"
)

const (
	clientSendBuffer = 8
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

// Envelope is the frame pushed to WebSocket clients.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans committed snapshots out to WebSocket clients. Each client has a bounded
// send queue; a client whose queue is full is dropped.
type Hub struct {
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.RWMutex
	clients map[string]*wsClient
	latest  []byte
}

// NewHub constructs a hub; call Run to start its loop.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:     logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
		clients:    make(map[string]*wsClient),
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			latest := h.latest
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetWebsocketClients(n)
			if latest != nil {
				h.enqueue(c, latest)
			}
			h.logger.Info("websocket client connected", slog.String("client_id", c.id))
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*wsClient, 0, len(h.clients))
			for _, c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				h.enqueue(c, msg)
			}
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			metrics.SetWebsocketClients(0)
			return
		}
	}
}

// OnSnapshot implements monitor.Listener.
func (h *Hub) OnSnapshot(_ context.Context, snap models.Snapshot) {
	msg, err := json.Marshal(Envelope{Type: "snapshot", Data: snap, Timestamp: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		h.logger.Error("encode snapshot frame", slog.Any("error", err))
		return
	}
	h.mu.Lock()
	h.latest = msg
	h.mu.Unlock()
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, frame dropped", slog.Uint64("generation", snap.Generation))
	}
}

// Clients reports the connected client count.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handle upgrades the request and serves the client until it disconnects.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.Any("error", err))
		return
	}
	client := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientSendBuffer)}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	case <-c.Request.Context().Done():
		_ = conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

// enqueue drops c when its queue is full.
func (h *Hub) enqueue(c *wsClient, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("websocket client too slow, dropping", slog.String("client_id", c.id))
		h.remove(c)
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
	h.logger.Info("websocket client disconnected", slog.String("client_id", c.id))
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
