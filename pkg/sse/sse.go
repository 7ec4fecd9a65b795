package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/gin-gonic/gin"
)

// Event is a single server-sent event addressed to one user.
type Event struct {
	UserID string
	Type   string
	Data   interface{}
}

type client struct {
	userID string
	ch     chan Event
}

// Manager fans out events to connected browser tabs per user. The reply
// store's live-subscription surface: usecases call SendToUser after every
// store mutation and the UI refreshes.
type Manager struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	events     chan Event
	register   chan *client
	unregister chan *client
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[*client]struct{}),
		events:     make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run processes registrations and event fan-out. Call once, in a goroutine.
func (m *Manager) Run() {
	for {
		select {
		case c := <-m.register:
			m.mu.Lock()
			m.clients[c] = struct{}{}
			m.mu.Unlock()
		case c := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[c]; ok {
				delete(m.clients, c)
				close(c.ch)
			}
			m.mu.Unlock()
		case ev := <-m.events:
			m.mu.RLock()
			for c := range m.clients {
				if c.userID != ev.UserID {
					continue
				}
				select {
				case c.ch <- ev:
				default:
					// Slow consumer, drop rather than block the loop.
				}
			}
			m.mu.RUnlock()
		}
	}
}

// SendToUser queues an event for all of the user's connected clients.
func (m *Manager) SendToUser(userID string, eventType string, payload interface{}) {
	select {
	case m.events <- Event{UserID: userID, Type: eventType, Data: payload}:
	default:
		log.Printf("[SSE] Event queue full, dropping %s for user %s", eventType, userID)
	}
}

// ServeHTTP streams events to one client until the connection closes.
func (m *Manager) ServeHTTP(c *gin.Context, userID string) {
	cl := &client{userID: userID, ch: make(chan Event, 16)}
	m.register <- cl
	defer func() { m.unregister <- cl }()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-cl.ch
		if !ok {
			return false
		}
		data, err := json.Marshal(ev.Data)
		if err != nil {
			log.Printf("[SSE] Failed to marshal event payload: %v", err)
			return true
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		return true
	})
}
