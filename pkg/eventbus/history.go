package eventbus

import "sync"

// DefaultHistorySize is the number of events kept when Options.HistorySize is zero
const DefaultHistorySize = 100

// history is a bounded ring of published events, oldest evicted first
type history struct {
	mu     sync.Mutex
	events []Event
	start  int
	size   int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &history{
		events: make([]Event, capacity),
	}
}

func (h *history) add(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.events)
	if h.size < capacity {
		h.events[(h.start+h.size)%capacity] = event
		h.size++
		return
	}

	h.events[h.start] = event
	h.start = (h.start + 1) % capacity
}

// snapshot returns the stored events in publish order
func (h *history) snapshot() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.events[(h.start+i)%len(h.events)]
	}
	return out
}

func (h *history) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.events {
		h.events[i] = Event{}
	}
	h.start = 0
	h.size = 0
}
