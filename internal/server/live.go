package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// liveHub fans relay messages out to websocket observers. Traffic is
// one-way: clients listen, the hub writes.
type liveHub struct {
	mu       sync.Mutex
	conns    map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

func newLiveHub() *liveHub {
	return &liveHub{
		conns: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *liveHub) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("live: upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()

	// Drain incoming frames so pings are answered; the first read error
	// drops the observer.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *liveHub) broadcast(v interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *liveHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[conn] {
		conn.Close()
		delete(h.conns, conn)
	}
}
