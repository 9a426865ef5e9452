package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tsladash/internal/service"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The page is served from the same host; browsers on other origins get
	// nothing but reload notices.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub relays dashboard events to every connected browser.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan service.Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	startOnce  sync.Once
	stop       context.CancelFunc
	log        logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan service.Event, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Start runs the hub in the background until Stop.
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		h.stop = cancel
		go h.run(ctx)
	})
}

// Stop closes every connection; later upgrades are refused.
func (h *Hub) Stop() {
	if h.stop != nil {
		h.stop()
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for client := range h.clients {
				_ = client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mutex.Unlock()
			h.log.WithField("clients", n).Debug("websocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if h.clients[client] {
				delete(h.clients, client)
				_ = client.Close()
			}
			n := len(h.clients)
			h.mutex.Unlock()
			h.log.WithField("clients", n).Debug("websocket client disconnected")

		case ev := <-h.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				h.log.WithError(err).Warn("marshal event")
				continue
			}
			h.mutex.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mutex.RUnlock()

			for _, client := range clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
					h.log.WithError(err).Debug("dropping websocket client")
					h.mutex.Lock()
					delete(h.clients, client)
					h.mutex.Unlock()
					_ = client.Close()
				}
			}
		}
	}
}

// Relay forwards events from ch until it is closed or ctx is done.
func (h *Hub) Relay(ctx context.Context, ch <-chan service.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			select {
			case h.broadcast <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and keeps reading until the peer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "websocket hub stopped", http.StatusServiceUnavailable)
		return
	default:
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.WithError(err).Debug("websocket read")
				}
				return
			}
		}
	}()
}
