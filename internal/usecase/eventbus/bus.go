package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"canvasmith/internal/domain"
)

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// mailbox is an unbounded FIFO feeding one subscriber goroutine.
type mailbox struct {
	mu     sync.Mutex
	queue  []delivery
	closed bool
	wake   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) put(d delivery) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, d)
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// drain returns everything queued so far and whether the box is closed.
func (m *mailbox) drain() ([]delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.queue
	m.queue = nil
	return batch, m.closed
}

type subscription struct {
	id      uint64
	handler domain.EventHandler
	box     *mailbox
}

// Bus is an in-process, goroutine-safe event bus. Every subscriber receives
// events in publish order on its own goroutine, so a slow subscriber never
// blocks publishers or other subscribers.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]*subscription
	allSubs []*subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		typed:  make(map[domain.EventType][]*subscription),
		logger: logger,
	}
}

// Publish queues an event for matching typed subscribers and all-event subscribers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	d := delivery{ctx: ctx, event: event}
	for _, sub := range b.typed[event.Type] {
		sub.box.put(d)
	}
	for _, sub := range b.allSubs {
		sub.box.put(d)
	}
}

func (b *Bus) start(handler domain.EventHandler) *subscription {
	sub := &subscription{id: b.nextID.Add(1), handler: handler, box: newMailbox()}
	b.wg.Add(1)
	go b.loop(sub)
	return sub
}

func (b *Bus) loop(sub *subscription) {
	defer b.wg.Done()
	for {
		batch, closed := sub.box.drain()
		for _, d := range batch {
			b.deliver(sub, d)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-sub.box.wake
	}
}

func (b *Bus) deliver(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"session_id", d.event.SessionID,
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function; events already queued are still delivered.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := b.start(handler)

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		sub.box.close()
		return func() {}
	}
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s.id == sub.id {
				b.typed[eventType] = append(subs[:i:i], subs[i+1:]...)
				s.box.close()
				return
			}
		}
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := b.start(handler)

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		sub.box.close()
		return func() {}
	}
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.allSubs {
			if s.id == sub.id {
				b.allSubs = append(b.allSubs[:i:i], b.allSubs[i+1:]...)
				s.box.close()
				return
			}
		}
	}
}

// Close prevents new publishes and waits until every queued event has been
// handled. Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for _, subs := range b.typed {
		for _, s := range subs {
			s.box.close()
		}
	}
	for _, s := range b.allSubs {
		s.box.close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}
