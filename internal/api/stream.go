package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kidvoice-labs/safegate/internal/models"
)

const streamWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The tablet client and the gateway are served from the same origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamConn serializes writes to one WebSocket connection.
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *streamConn) send(pkg models.UIPackage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return c.conn.WriteJSON(pkg)
}

func (c *streamConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.Close()
}

// streamHub fans timer-driven UI packages out to the WebSocket connections
// subscribed to each session.
type streamHub struct {
	mu    sync.RWMutex
	conns map[string]map[*streamConn]struct{}
}

func newStreamHub() *streamHub {
	return &streamHub{conns: make(map[string]map[*streamConn]struct{})}
}

// serve upgrades the request and subscribes the connection to a session's
// packages until the client disconnects.
func (h *streamHub) serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("streamHub.serve: upgrade failed", "sessionID", sessionID, "error", err)
		return
	}

	sc := &streamConn{conn: conn}
	h.add(sessionID, sc)
	slog.Debug("streamHub.serve: client subscribed", "sessionID", sessionID)

	// The stream is one-way; reading only detects disconnects and close
	// frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(sessionID, sc)
	sc.close()
}

// broadcast sends a package to every connection subscribed to the session.
// Connections that fail are dropped.
func (h *streamHub) broadcast(sessionID string, pkg models.UIPackage) {
	h.mu.RLock()
	subs := make([]*streamConn, 0, len(h.conns[sessionID]))
	for sc := range h.conns[sessionID] {
		subs = append(subs, sc)
	}
	h.mu.RUnlock()

	for _, sc := range subs {
		if err := sc.send(pkg); err != nil {
			slog.Warn("streamHub.broadcast: send failed, dropping connection",
				"sessionID", sessionID, "error", err)
			h.remove(sessionID, sc)
			sc.close()
		}
	}
}

// closeSession drops every connection subscribed to a session.
func (h *streamHub) closeSession(sessionID string) {
	h.mu.Lock()
	subs := h.conns[sessionID]
	delete(h.conns, sessionID)
	h.mu.Unlock()

	for sc := range subs {
		sc.close()
	}
}

// closeAll drops every connection on shutdown.
func (h *streamHub) closeAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]map[*streamConn]struct{})
	h.mu.Unlock()

	for _, subs := range conns {
		for sc := range subs {
			sc.close()
		}
	}
}

func (h *streamHub) add(sessionID string, sc *streamConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[sessionID] == nil {
		h.conns[sessionID] = make(map[*streamConn]struct{})
	}
	h.conns[sessionID][sc] = struct{}{}
}

func (h *streamHub) remove(sessionID string, sc *streamConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.conns[sessionID]; ok {
		delete(subs, sc)
		if len(subs) == 0 {
			delete(h.conns, sessionID)
		}
	}
}
