package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/live-translator/internal/pipeline"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	clientBuffer   = 64
)

// StatusView is the wire form of a pipeline status
type StatusView struct {
	Kind    pipeline.Kind `json:"kind"`
	Message string        `json:"message"`
	Color   string        `json:"color"`
	ChunkID string        `json:"chunk_id,omitempty"`
	Error   string        `json:"error,omitempty"`
	At      time.Time     `json:"at"`
}

// NewStatusView converts a status for JSON clients
func NewStatusView(status pipeline.Status) StatusView {
	view := StatusView{
		Kind:    status.Kind,
		Message: status.Message,
		Color:   status.Color(),
		ChunkID: status.ChunkID,
		At:      status.At,
	}
	if status.Err != nil {
		view.Error = status.Err.Error()
	}
	return view
}

// EventMessage is one frame pushed to WebSocket clients
type EventMessage struct {
	Type   string           `json:"type"` // status or result
	Status *StatusView      `json:"status,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
}

// EventHub is a ResultSink that pushes statuses and results to every
// connected WebSocket client. A client that falls behind loses messages
// instead of stalling the pipeline.
type EventHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// allowedOrigins are browser origins accepted besides the server's own
	// host; "*" accepts any
	allowedOrigins []string

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	dropped atomic.Uint64
}

// wsClient is one connected WebSocket
type wsClient struct {
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventHub creates a hub with no clients. Browsers may connect from the
// server's own origin or from one of allowedOrigins.
func NewEventHub(logger *slog.Logger, allowedOrigins []string) *EventHub {
	h := &EventHub{
		logger:         logger,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*wsClient]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients), same-host origins and configured origins
func (h *EventHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}

	h.logger.Warn("WebSocket origin rejected", slog.String("origin", origin))
	return false
}

func (h *EventHub) OnStatus(status pipeline.Status) {
	view := NewStatusView(status)
	h.broadcast(EventMessage{Type: "status", Status: &view})
}

func (h *EventHub) OnResult(result pipeline.Result) {
	h.broadcast(EventMessage{Type: "result", Result: &result})
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were not delivered to slow clients
func (h *EventHub) Dropped() uint64 {
	return h.dropped.Load()
}

// ServeHTTP upgrades the request and streams events until the client leaves
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &wsClient{
		ws:   ws,
		send: make(chan []byte, clientBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("WebSocket client connected", slog.String("remote_addr", r.RemoteAddr))

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client
func (h *EventHub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *EventHub) broadcast(msg EventMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
			h.logger.Warn("WebSocket send buffer full, dropping event", slog.String("type", msg.Type))
		}
	}
}

func (h *EventHub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// readPump discards client messages and detects disconnects
func (h *EventHub) readPump(c *wsClient) {
	defer h.remove(c)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (h *EventHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("WebSocket write error", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// close signals writePump, which sends a close frame and closes the socket
func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
