package adminserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/thejch/storage-engine/pkg/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// eventHub fans out buffer-pool lifecycle events to any number of
// WebSocket subscribers, grounded on the teacher's ChangeStreamManager
// (pkg/server/handlers/websocket.go) but carrying page load/evict/flush
// notifications instead of document change events.
type eventHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan storage.Event
	closed  bool
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*websocket.Conn]chan storage.Event)}
}

// watch subscribes the hub to pool's event stream and relays events to
// every connected client.
func (h *eventHub) watch(pool *storage.BufferPool) {
	ch := pool.Subscribe(64)
	go func() {
		for ev := range ch {
			h.broadcast(ev)
		}
	}()
}

func (h *eventHub) broadcast(ev storage.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c <- ev:
		default:
		}
	}
}

func (h *eventHub) add(conn *websocket.Conn) chan storage.Event {
	ch := make(chan storage.Event, 32)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *eventHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for conn, ch := range h.clients {
		close(ch)
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]chan storage.Event)
}

// handleEvents upgrades the request to a WebSocket and streams pool
// lifecycle events to it as JSON lines until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("adminserver: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch := s.hub.add(conn)
	defer s.hub.remove(conn)

	for ev := range ch {
		msg := map[string]any{"kind": ev.Kind.String(), "page": ev.Page.String()}
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
