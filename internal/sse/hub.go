package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/repolens/repolens-backend/internal/logger"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LogEvent is one progress/log record emitted by the orchestrator. Origin
// identifies the emitting process when events travel over an external bus.
type LogEvent struct {
	Message string    `json:"message"`
	Level   Level     `json:"level"`
	Time    time.Time `json:"time"`
	Origin  string    `json:"origin,omitempty"`
}

// Client is one live observer. Outbound is bounded; when an observer cannot
// keep up the hub drops events for that observer rather than blocking the
// producer.
type Client struct {
	ID       uuid.UUID
	Outbound chan LogEvent
	done     chan struct{}
}

const clientBuffer = 64

// Hub fans orchestrator events out to zero or more live observers. Delivery
// is best-effort and ephemeral.
type Hub struct {
	mu      sync.RWMutex
	log     *logger.Logger
	origin  string
	mirror  func(LogEvent)
	clients map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log.With("component", "EventHub"),
		origin:  uuid.NewString(),
		clients: make(map[*Client]bool),
	}
}

// Origin is this hub's process identity, stamped on everything it emits.
func (h *Hub) Origin() string {
	return h.origin
}

// SetMirror registers a callback invoked once per locally emitted event,
// used to mirror the stream onto an external bus. Call before serving.
func (h *Hub) SetMirror(fn func(LogEvent)) {
	h.mirror = fn
}

func (h *Hub) Subscribe() *Client {
	client := &Client{
		ID:       uuid.New(),
		Outbound: make(chan LogEvent, clientBuffer),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	h.log.Debug("Event client subscribed", "clientID", client.ID)
	return client
}

func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()

	close(client.done)
	close(client.Outbound)
	h.log.Debug("Event client unsubscribed", "clientID", client.ID)
}

// Broadcast stamps the event with this hub's origin, mirrors it if a mirror
// is registered, and delivers it to local subscribers.
func (h *Hub) Broadcast(event LogEvent) {
	if event.Origin == "" {
		event.Origin = h.origin
	}
	if h.mirror != nil {
		h.mirror(event)
	}
	h.Deliver(event)
}

// Deliver fans event out to local subscribers only. Never blocks on a slow
// consumer. Events arriving from an external bus come in through here so
// they are not mirrored back out.
func (h *Hub) Deliver(event LogEvent) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.Outbound <- event:
		default:
			h.log.Warn("Dropping event; observer buffer full", "clientID", c.ID)
		}
	}
}

// Notify is the convenience emitter used throughout the orchestrator.
func (h *Hub) Notify(message string, level Level) {
	h.Broadcast(LogEvent{Message: message, Level: level, Time: time.Now()})
}

// SubscriberCount is exposed for tests and the status endpoint.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP streams a client's events as server-sent events until the
// request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-client.Outbound:
			if !ok {
				return
			}
			raw, err := json.Marshal(event)
			if err != nil {
				h.log.Warn("Failed to marshal event", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", raw)
			flusher.Flush()
		}
	}
}
