package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/profclems/catchhook/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// viewer is one connected dashboard page
type viewer struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	hidden bool
}

// Hub tracks connected viewers and fans out messages to them.
// The controller is treated as visible while at least one viewer reports
// its page as visible.
type Hub struct {
	mu      sync.Mutex
	viewers map[string]*viewer

	// visMu serializes reading the aggregate visibility with delivering it,
	// so a stale result never lands after a newer one.
	visMu sync.Mutex

	upgrader websocket.Upgrader
	logger   *slog.Logger

	// onVisibility is called with the aggregate visibility whenever a viewer
	// connects, disconnects or reports a change.
	onVisibility func(visible bool)
	// onMessage handles refresh and select requests from viewers.
	onMessage func(viewerID string, msg *protocol.ViewerMessage)
	// onConnect returns the messages a new viewer receives first.
	onConnect func() []*protocol.ViewerMessage
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		viewers:  make(map[string]*viewer),
		// nil CheckOrigin rejects browsers whose Origin host differs from Host
		upgrader: websocket.Upgrader{},
		logger:   logger,
	}
}

// Len returns the number of connected viewers
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Visible reports whether any connected viewer has its page visible
func (h *Hub) Visible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visibleLocked()
}

func (h *Hub) visibleLocked() bool {
	for _, v := range h.viewers {
		if !v.hidden {
			return true
		}
	}
	return false
}

// Broadcast sends msg to every viewer. Viewers whose buffer is full miss
// the message.
func (h *Hub) Broadcast(msg *protocol.ViewerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode viewer message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range h.viewers {
		select {
		case v.send <- data:
		default:
			h.logger.Debug("viewer buffer full, dropping message", "viewer", v.id, "type", msg.Type)
		}
	}
}

// ServeWS upgrades the request and runs the viewer until it disconnects
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	v := &viewer{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	if h.onConnect != nil {
		for _, msg := range h.onConnect() {
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			v.send <- data
		}
	}

	h.mu.Lock()
	h.viewers[v.id] = v
	h.mu.Unlock()
	h.logger.Debug("viewer connected", "viewer", v.id, "remote", r.RemoteAddr)
	h.syncVisibility()

	done := make(chan struct{})
	go h.writePump(v, done)
	h.readPump(v)

	h.mu.Lock()
	delete(h.viewers, v.id)
	h.mu.Unlock()
	close(done)
	conn.Close()
	h.logger.Debug("viewer disconnected", "viewer", v.id)
	h.syncVisibility()
}

func (h *Hub) readPump(v *viewer) {
	v.conn.SetReadLimit(64 * 1024)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg protocol.ViewerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("ignoring malformed viewer message", "viewer", v.id, "error", err)
			continue
		}

		if msg.Type == protocol.MsgVisibility {
			var vis protocol.Visibility
			if err := msg.Decode(&vis); err != nil {
				continue
			}
			h.mu.Lock()
			v.hidden = vis.Hidden
			h.mu.Unlock()
			h.syncVisibility()
			continue
		}

		if h.onMessage != nil {
			h.onMessage(v.id, &msg)
		}
	}
}

// writePump is the only goroutine that writes to the viewer's connection
func (h *Hub) writePump(v *viewer, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case data := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				v.conn.Close()
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				v.conn.Close()
				return
			}
		}
	}
}

// syncVisibility delivers the current aggregate visibility to onVisibility
func (h *Hub) syncVisibility() {
	h.visMu.Lock()
	defer h.visMu.Unlock()
	if h.onVisibility != nil {
		h.onVisibility(h.Visible())
	}
}
