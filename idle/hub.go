// Package idle detects user inactivity and keeps the server-side session
// alive. Timer state is synchronised across tabs through a broadcast hub
// keyed by session id.
package idle

import "sync"

// MessageKind is the cross-tab message contract: a reset restarts the
// inactivity timer everywhere, an expire ends the session everywhere.
type MessageKind string

const (
	KindReset  MessageKind = "reset"
	KindExpire MessageKind = "expire"
)

// Message is one cross-tab timer event.
type Message struct {
	SessionID string
	Kind      MessageKind
	// Sender identifies the publishing monitor so it can ignore its own
	// messages.
	Sender string
}

// Hub is an in-process broadcast channel keyed by session id, the
// stand-in for the browser's storage-event plumbing.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Message]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Message]struct{})}
}

// Subscribe registers for messages about the given session id. The
// returned cancel func must be called to release the subscription.
func (h *Hub) Subscribe(sessionID string) (<-chan Message, func()) {
	ch := make(chan Message, 8)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Message]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[sessionID], ch)
		if len(h.subs[sessionID]) == 0 {
			delete(h.subs, sessionID)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans the message out to every subscriber of its session id.
// Slow subscribers drop messages rather than block the publisher.
func (h *Hub) Publish(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[msg.SessionID] {
		select {
		case ch <- msg:
		default:
		}
	}
}
