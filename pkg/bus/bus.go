package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultInboundCapacity = 256
	eventBuffer            = 64
	publishTimeout         = 100 * time.Millisecond
)

// MessageBus carries transport events to the dispatcher and fans
// conversation events out to subscribers.
type MessageBus struct {
	inbound     chan InboundMessage
	subscribers map[uint64]chan Event
	nextSub     uint64
	closed      bool
	dropped     droppedCounters
	mu          sync.RWMutex
	now         func() time.Time
}

type droppedCounters struct {
	inbound atomic.Uint64
	events  atomic.Uint64
}

func NewMessageBus() *MessageBus {
	return NewMessageBusWithCapacity(DefaultInboundCapacity)
}

func NewMessageBusWithCapacity(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = DefaultInboundCapacity
	}
	return &MessageBus{
		inbound:     make(chan InboundMessage, capacity),
		subscribers: make(map[uint64]chan Event),
		now:         time.Now,
	}
}

// PublishInbound enqueues msg. When the queue stays full for
// publishTimeout the message is dropped and counted.
func (mb *MessageBus) PublishInbound(msg InboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}

	select {
	case mb.inbound <- msg:
		return true
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.inbound <- msg:
			return true
		case <-timer.C:
			mb.dropped.inbound.Add(1)
			return false
		}
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		if !ok {
			return InboundMessage{}, false
		}
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// Emit stamps ev and delivers it to every subscriber without blocking.
// A subscriber with a full buffer misses the event.
func (mb *MessageBus) Emit(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = mb.now()
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	for _, ch := range mb.subscribers {
		select {
		case ch <- ev:
		default:
			mb.dropped.events.Add(1)
		}
	}
}

// Subscribe returns a stream of events and a func that ends it.
func (mb *MessageBus) Subscribe() (<-chan Event, func()) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	ch := make(chan Event, eventBuffer)
	if mb.closed {
		close(ch)
		return ch, func() {}
	}
	id := mb.nextSub
	mb.nextSub++
	mb.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			mb.mu.Lock()
			defer mb.mu.Unlock()
			if sub, ok := mb.subscribers[id]; ok {
				delete(mb.subscribers, id)
				close(sub)
			}
		})
	}
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
	for id, ch := range mb.subscribers {
		delete(mb.subscribers, id)
		close(ch)
	}
}

func (mb *MessageBus) DroppedInbound() uint64 {
	return mb.dropped.inbound.Load()
}

func (mb *MessageBus) DroppedEvents() uint64 {
	return mb.dropped.events.Load()
}
