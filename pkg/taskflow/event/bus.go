package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Bus distributes events to subscribers.
type Bus interface {
	// Publish hands evt to every matching subscription.
	Publish(ctx context.Context, evt Event) error

	// Subscribe registers handler for the given event types.
	// No types means every event.
	Subscribe(handler Handler, types ...string) Subscription

	// Close stops accepting events and waits for queued events to be handled.
	Close() error
}

// Subscription is a registered handler.
type Subscription interface {
	ID() string
	Unsubscribe()
}

// BusConfig configures a LocalBus.
type BusConfig struct {
	// BufferSize is the queue length per subscription. Default 256.
	BufferSize int

	// OnError receives handler failures.
	OnError func(evt Event, subscriptionID string, err error)
}

// LocalBus is an in-process Bus. Every subscription has its own goroutine
// and queue, so each subscriber sees events in publish order.
type LocalBus struct {
	cfg BusConfig

	mu   sync.RWMutex
	subs map[string]*subscription

	closed    atomic.Bool
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Bus = (*LocalBus)(nil)

// NewBus creates a LocalBus.
func NewBus(cfg BusConfig) *LocalBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &LocalBus{
		cfg:     cfg,
		subs:    make(map[string]*subscription),
		closeCh: make(chan struct{}),
	}
}

type subscription struct {
	id      string
	types   map[string]struct{}
	handler Handler
	events  chan Event
	done    chan struct{}
	once    sync.Once
	bus     *LocalBus
}

// Publish blocks while a subscriber's queue is full, until ctx is done, the
// subscription goes away or the bus closes. Delivery happens outside the
// bus lock, so handlers may unsubscribe.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return &Error{Event: evt, Message: "publish", Err: ErrBusClosed}
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(evt.Type()) {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- evt:
		case <-sub.done:
			if b.closed.Load() {
				return &Error{Event: evt, Message: "publish", Err: ErrBusClosed}
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return &Error{Event: evt, Message: "publish", Err: ErrBusClosed}
		}
	}
	return nil
}

// Subscribe implements Bus. It returns nil once the bus is closed.
func (b *LocalBus) Subscribe(handler Handler, types ...string) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return nil
	}

	sub := &subscription{
		id:      uuid.NewString(),
		handler: handler,
		events:  make(chan Event, b.cfg.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.subs[sub.id] = sub

	b.wg.Add(1)
	go sub.process()
	return sub
}

// Close implements Bus. Events already queued are handled before it
// returns, so it must not be called from a handler.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	if !b.closed.CompareAndSwap(false, true) {
		b.mu.Unlock()
		return nil
	}
	b.closeOnce.Do(func() { close(b.closeCh) })
	for id, sub := range b.subs {
		sub.stop()
		delete(b.subs, id)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (s *subscription) ID() string { return s.id }

// Unsubscribe stops delivery. Events already queued are still handled.
// It is safe to call from the subscription's own handler.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s.id)
	s.stop()
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) matches(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

func (s *subscription) process() {
	defer s.bus.wg.Done()
	for {
		select {
		case evt := <-s.events:
			s.handle(evt)
		case <-s.done:
			s.drain()
			return
		}
	}
}

// drain handles whatever was queued before the subscription stopped.
func (s *subscription) drain() {
	for {
		select {
		case evt := <-s.events:
			s.handle(evt)
		default:
			return
		}
	}
}

func (s *subscription) handle(evt Event) {
	if err := s.handler.Handle(context.Background(), evt); err != nil && s.bus.cfg.OnError != nil {
		s.bus.cfg.OnError(evt, s.id, err)
	}
}
