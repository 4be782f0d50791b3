package ingest

import (
	"sync"

	"github.com/google/uuid"
)

const feedBuffer = 16

// Feed fans applied updates out to live subscribers such as the admin tail.
// Delivery never blocks the sender: a subscriber whose buffer is full misses
// the update.
type Feed struct {
	mu          sync.Mutex
	subscribers map[string]chan Update
	closed      bool
}

// NewFeed creates an empty Feed.
func NewFeed() *Feed {
	return &Feed{subscribers: make(map[string]chan Update)}
}

// Subscribe registers a new subscriber. The ID is used to unsubscribe.
// Subscribing to a closed feed returns an already closed channel.
func (f *Feed) Subscribe() (string, <-chan Update) {
	id := uuid.NewString()
	ch := make(chan Update, feedBuffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return id, ch
	}
	f.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (f *Feed) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

// Subscribers reports how many subscribers are registered.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// ProfileApplied implements Observer.
func (f *Feed) ProfileApplied(u Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, ch := range f.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

// Close closes every subscriber channel. Later updates are dropped.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, ch := range f.subscribers {
		close(ch)
		delete(f.subscribers, id)
	}
}
