package api

import (
	"net/http"
	"sync"
	"time"

	"ledger-monitor/monitor"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// wsMessage is the envelope pushed to websocket clients.
type wsMessage struct {
	Type string           `json:"type"`
	Data monitor.Snapshot `json:"data"`
}

// Hub fans every published snapshot out to connected websocket clients.
// Clients that fall behind or error are dropped; the feed is push-only.
type Hub struct {
	mutex    sync.Mutex
	upgrader websocket.Upgrader
	conns    map[*websocket.Conn]bool
	closed   bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// Dashboards are served from other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: map[*websocket.Conn]bool{},
	}
}

// HandleWS upgrades the request and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		conn.Close()
		return
	}
	h.conns[conn] = true
	clients := len(h.conns)
	h.mutex.Unlock()

	log.WithField("clients", clients).Info("Websocket client connected")

	// Reader loop exists only to observe the close handshake; the feed is
	// one-directional.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Broadcast pushes one snapshot to every connected client.
func (h *Hub) Broadcast(snap monitor.Snapshot) {
	msg := wsMessage{Type: "snapshot", Data: snap}

	h.mutex.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mutex.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.WithError(err).Debug("Websocket write failed, dropping client")
			h.drop(conn)
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mutex.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = map[*websocket.Conn]bool{}
	h.mutex.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mutex.Lock()
	delete(h.conns, conn)
	h.mutex.Unlock()
	conn.Close()
}
