package cache

import (
	"sync"
)

// Event describes one cache change. Family events cover every key with the
// given prefix; All covers the whole store.
type Event struct {
	Key    string
	Family bool
	All    bool
}

// Subscription is a registered change listener. Events are delivered on C;
// a subscriber that falls behind misses events rather than blocking writers.
type Subscription struct {
	C   <-chan Event
	id  int
	hub *hub
}

func (s *Subscription) Unsubscribe() {
	s.hub.unsubscribe(s.id)
}

type hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func newHub() *hub {
	return &hub{
		subs: make(map[int]chan Event),
	}
}

func (h *hub) subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan Event, 16)
	if h.closed {
		close(ch)
	} else {
		h.subs[id] = ch
	}

	return &Subscription{C: ch, id: id, hub: h}
}

func (h *hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) close() {
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
