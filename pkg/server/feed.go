package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"
)

// FeedEvent is the JSON shape streamed to spectator clients.
type FeedEvent struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	MatchID   string      `json:"match_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// feedClient is one spectator connection. An empty matchID subscribes
// to every match plus the pool-level sensor events.
type feedClient struct {
	conn    *websocket.Conn
	matchID string
}

// FeedHub manages WebSocket connections for the live match feed. The
// hub is purely observational; inbound client data is discarded.
type FeedHub struct {
	log        slog.Logger
	clients    map[*feedClient]bool
	broadcast  chan FeedEvent
	register   chan *feedClient
	unregister chan *feedClient
	quit       chan struct{}
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewFeedHub creates a new feed hub
func NewFeedHub(log slog.Logger) *FeedHub {
	if log == nil {
		log = slog.Disabled
	}
	return &FeedHub{
		log:        log,
		clients:    make(map[*feedClient]bool),
		broadcast:  make(chan FeedEvent, 256),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Spectator feed is read-only on an unauthenticated
				// control port.
				return true
			},
		},
	}
}

// Run starts the hub loop. It returns after Stop.
func (h *FeedHub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debugf("Feed client connected for match %q (total: %d)", client.matchID, n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debugf("Feed client disconnected (total: %d)", n)

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.matchID != "" && client.matchID != event.MatchID {
					continue
				}
				if err := client.conn.WriteJSON(event); err != nil {
					h.log.Debugf("Feed write error, dropping client: %v", err)
					client.conn.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				client.conn.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub loop down and closes every client.
func (h *FeedHub) Stop() {
	close(h.quit)
	<-h.done
}

// Broadcast queues an event for every subscribed client. Events are
// dropped with a log line when the hub cannot keep up.
func (h *FeedHub) Broadcast(event FeedEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warnf("Feed queue full, dropping event %s for match %q", event.Type, event.MatchID)
	}
}

// HandleWatch upgrades an HTTP request into a feed subscription. The
// match_id query parameter narrows the stream to one match.
func (h *FeedHub) HandleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("Feed upgrade error: %v", err)
		return
	}

	client := &feedClient{conn: conn, matchID: r.URL.Query().Get("match_id")}
	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	// Drain and discard inbound frames until the peer goes away.
	go func() {
		defer func() {
			select {
			case h.unregister <- client:
			case <-h.quit:
			}
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of connected spectators.
func (h *FeedHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
