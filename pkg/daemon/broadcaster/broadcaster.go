// Package broadcaster manages subscribers and distributes library events.
package broadcaster

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/shelf/pkg/daemon/store"
)

// EventType represents the type of library event.
type EventType int

const (
	EventScanStarted EventType = iota
	EventScanFinished
	EventScanFailed
	EventEntryAdded
	EventEntryRemoved
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventScanStarted:
		return "scan_started"
	case EventScanFinished:
		return "scan_finished"
	case EventScanFailed:
		return "scan_failed"
	case EventEntryAdded:
		return "entry_added"
	case EventEntryRemoved:
		return "entry_removed"
	default:
		return "unknown"
	}
}

// Event is a library event.
type Event struct {
	Type EventType
	// Path is the top-level entry for entry events.
	Path string
	Time time.Time
	// Summary is set for EventScanFinished.
	Summary *store.ScanSummary
	// Err is set for EventScanFailed.
	Err string
}

// Subscriber represents a client subscribed to library events.
type Subscriber struct {
	ID     string
	Events chan *Event
}

// Broadcaster manages subscribers and distributes library events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe creates a new subscription. It returns nil once the
// broadcaster is closed.
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:     uuid.New().String(),
		Events: make(chan *Event, 100),
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify sends an event to all subscribers. Slow subscribers drop events.
func (b *Broadcaster) Notify(event *Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		select {
		case sub.Events <- event:
		default:
			// Channel full, event dropped
		}
	}
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
