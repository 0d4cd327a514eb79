// Package gateway implements the admin introspection surface: a
// read-only GraphQL schema over DLR entries and translations, and a
// websocket stream of MO/MT/DLR lifecycle events, mounted under /admin
// alongside the mandatory HTTP ingress.
package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is one MO/MT/DLR lifecycle notice published to admin websocket
// clients for live operational tailing.
type Event struct {
	Kind   string         `json:"kind"` // "mo" | "mt" | "dlr"
	Detail map[string]any `json:"detail"`
	Time   time.Time      `json:"time"`
}

// Hub fans Published events out to every connected websocket client.
// A slow client misses the events that arrive while its buffer is full
// rather than backing up the publishers.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]chan Event
}

// NewHub builds a Hub. CORS is handled by the surrounding router, so
// the upgrader's origin check is permissive.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]chan Event),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish fans e out to every connected client. Clients whose buffer is
// full are skipped for this event rather than blocking the publisher.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

// ServeWS upgrades the request to a websocket and streams events to it
// until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("gateway: websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	id := fmt.Sprintf("%p", conn)
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
	}()

	// Drain and discard client frames (pings, subscribe chatter); their
	// only purpose here is detecting disconnect.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e := <-ch:
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-disconnected:
			return
		}
	}
}
