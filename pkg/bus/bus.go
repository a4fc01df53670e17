package bus

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 100

// EventType names one dispatch lifecycle event.
type EventType string

const (
	EventUpdateDispatched EventType = "update_dispatched"
	EventUpdateFailed     EventType = "update_failed"
	EventPollFailed       EventType = "poll_failed"
	EventTransportStarted EventType = "transport_started"
	EventTransportStopped EventType = "transport_stopped"
)

// Event describes something that happened while dispatching updates.
type Event struct {
	Type       EventType `json:"type"`
	At         time.Time `json:"at"`
	Transport  string    `json:"transport,omitempty"`
	UpdateID   int64     `json:"update_id,omitempty"`
	UpdateType string    `json:"update_type,omitempty"`
	DispatchID string    `json:"dispatch_id,omitempty"`
	Offset     int64     `json:"offset,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Bus fans dispatch events out to subscribers without ever blocking the publisher.
type Bus struct {
	subscribers map[uint64]chan Event
	nextID      uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[uint64]chan Event),
		done:        make(chan struct{}),
	}
}

// Publish delivers event to every subscriber with room in its buffer.
func (b *Bus) Publish(ctx context.Context, event Event) bool {
	if b == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	// Sends never block, so the read lock is held across them; unsubscribe
	// and Close take the write lock before closing a channel.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the dispatcher on slow subscribers.
		}
	}

	return true
}

// Subscribe returns a buffered event channel and its unsubscribe function.
// The channel is closed on unsubscribe, ctx cancellation or Close.
func (b *Bus) Subscribe(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if eventCh, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.subscribers {
			close(ch)
			delete(b.subscribers, id)
		}
		b.mu.Unlock()
	})
}
