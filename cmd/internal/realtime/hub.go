package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// Hub is the set of live feed subscribers and the broadcast fanout.
//
// Join/Leave are safe under concurrent Broadcast. Broadcast never blocks: a
// subscriber whose queue is full misses the event.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.RWMutex
	members map[string]*Client
	closed  bool
}

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		members: make(map[string]*Client),
	}
}

// Join adds a client. It returns false once the hub has been closed.
func (h *Hub) Join(client *Client) bool {
	if h == nil || client == nil || client.SessionID == "" {
		return false
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.members[client.SessionID] = client
	n := len(h.members)
	h.mu.Unlock()

	h.log.Info("feed.member.join", "session_id", client.SessionID, "subscribers", n)
	return true
}

// Leave removes a client and signals its shutdown.
func (h *Hub) Leave(sessionID string) {
	if h == nil || sessionID == "" {
		return
	}

	h.mu.Lock()
	cl, ok := h.members[sessionID]
	delete(h.members, sessionID)
	n := len(h.members)
	h.mu.Unlock()

	// Close after removal so no broadcaster still targets a client being torn down.
	if ok {
		cl.Close()
		h.log.Info("feed.member.leave", "session_id", sessionID, "subscribers", n)
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Broadcast fans env out to every subscriber and returns how many queued it.
func (h *Hub) Broadcast(env Envelope) int {
	if h == nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, m := range h.members {
		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.Send <- env:
			delivered++
		default:
			h.log.Warn("feed.drop.backpressure", "session_id", m.SessionID, "type", env.Type)
		}
	}
	return delivered
}

// Publish wraps payload in an envelope of eventType and broadcasts it.
func (h *Hub) Publish(eventType string, payload any) {
	if h == nil {
		return
	}
	env, err := NewEnvelope(eventType, payload, h.now())
	if err != nil {
		h.log.Error("feed.publish.fail", "type", eventType, "err", err)
		return
	}
	n := h.Broadcast(env)
	h.log.Debug("feed.publish", "type", eventType, "id", env.ID, "delivered", n)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	if h == nil {
		return
	}

	h.mu.Lock()
	h.closed = true
	members := h.members
	h.members = make(map[string]*Client)
	h.mu.Unlock()

	for _, m := range members {
		m.Close()
	}
	if len(members) > 0 {
		h.log.Info("feed.closed", "disconnected", len(members))
	}
}
