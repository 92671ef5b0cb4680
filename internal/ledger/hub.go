package ledger

import (
	"sync"

	"github.com/ypk/contentguard/internal/model"
)

// Hub fans appended ledger events out to in-process consumers: the
// violation detector, the analytics aggregator and the operator activity
// stream. Non-blocking: a slow subscriber misses events rather than
// stalling the append pipeline.
type Hub struct {
	mu   sync.Mutex
	subs map[chan model.ViewEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan model.ViewEvent]struct{})}
}

// Subscribe registers a consumer. Returns the event channel and an
// unsubscribe function.
func (h *Hub) Subscribe() (<-chan model.ViewEvent, func()) {
	ch := make(chan model.ViewEvent, 64)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	unsub := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, unsub
}

// Publish delivers an event to all subscribers. Slow subscribers are
// skipped.
func (h *Hub) Publish(e model.ViewEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
