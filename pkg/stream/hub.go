// Package stream publishes recorded changes over HTTP.
//
// A Hub fans journal entries out to any number of subscribers without ever
// blocking the publisher: a subscriber whose buffer is full misses the entry
// and the drop is counted. The router serves the journal, a summary and a
// WebSocket feed of live entries.
//
// Example usage:
//
//	hub := stream.NewHub(0)
//	defer hub.Close()
//
//	srv := stream.NewServer(stream.Config{Hub: hub, Store: store, Logger: log})
//	go http.ListenAndServe("127.0.0.1:8765", stream.NewRouter(srv))
//
//	hub.Publish(entry)
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/0xmhha/folderwatch/pkg/journal"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 128

// Hub fans out entries to subscribers without blocking on slow listeners.
type Hub struct {
	buffer int

	mu          sync.Mutex
	subscribers map[uint64]chan journal.Entry
	nextID      uint64
	closed      bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub. buffer <= 0 selects DefaultSubscriberBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		buffer:      buffer,
		subscribers: make(map[uint64]chan journal.Entry),
	}
}

// Subscribe returns a channel receiving every entry published from now on
// and a function that cancels the subscription and closes the channel.
// Subscribing to a closed hub returns a closed channel.
func (h *Hub) Subscribe() (<-chan journal.Entry, func()) {
	ch := make(chan journal.Entry, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	h.subscribers[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(existing)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers e to every subscriber with room in its buffer.
func (h *Hub) Publish(e journal.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.published.Add(1)
	for _, ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Published returns how many entries were published.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}

// Dropped returns how many deliveries were skipped because a subscriber was
// not keeping up.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close closes every subscription. Later publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
