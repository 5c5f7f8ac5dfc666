package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/conversation"
)

const defaultSubscriberBuffer = 64

// Hub fans driver events out to live subscribers (SSE streams, websockets). Publish never blocks;
// a subscriber that falls behind misses events rather than stalling the session.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan conversation.Event
	next   int
	buffer int
	closed bool
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[int]chan conversation.Event), buffer: buffer}
}

// Publish implements conversation.EventSink.
func (h *Hub) Publish(e conversation.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			log.Debug().Str("component", "hub").Str("session", e.SessionID).Int("subscriber", id).
				Str("event", string(e.Type)).Msg("subscriber lagging, event dropped")
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func is idempotent. The channel is
// closed by cancel or when the hub closes.
func (h *Hub) Subscribe() (<-chan conversation.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan conversation.Event, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
