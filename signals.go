package sessionkit

import (
	"sync"
	"sync/atomic"
)

// signalHub fans refresh lifecycle events out to subscribers. Delivery is
// non-blocking: a subscriber that stops draining loses its oldest events
// first, so the newest state change always lands.
type signalHub struct {
	buffer int

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan RefreshEvent
	closed bool

	dropped atomic.Uint64
}

func newSignalHub(buffer int) *signalHub {
	if buffer <= 0 {
		buffer = 1
	}
	return &signalHub{
		buffer: buffer,
		subs:   make(map[uint64]chan RefreshEvent),
	}
}

// subscribe registers a listener and returns its channel plus a cancel
// function. The channel closes on cancel and on hub shutdown.
func (h *signalHub) subscribe() (<-chan RefreshEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan RefreshEvent, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// publish delivers ev to every subscriber without ever blocking the caller.
func (h *signalHub) publish(ev RefreshEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	for _, ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Full buffer: evict the oldest event, then try once more.
		select {
		case <-ch:
			h.dropped.Add(1)
		default:
		}
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// close shuts the hub down and closes every subscriber channel.
func (h *signalHub) close() {
	if h == nil {
		return
	}
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

// Dropped reports how many events were evicted from slow subscribers.
func (h *signalHub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}
