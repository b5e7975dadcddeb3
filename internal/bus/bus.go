package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultHistorySize is the number of recent events kept for replay.
	DefaultHistorySize = 1000

	// DefaultChannelBuffer is the buffer size of each subscriber channel.
	DefaultChannelBuffer = 256
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus is closed")

// SubscriptionID identifies a subscription.
type SubscriptionID string

// Subscription is a single registered handler. Each subscription drains its
// own channel on a dedicated goroutine, so handlers never block publishers.
type Subscription struct {
	ID        SubscriptionID
	EventType EventType
	Handler   func(Event)
	Channel   chan Event
	done      chan struct{}
}

// Bus is a pub/sub hub with typed and wildcard subscriptions and a bounded
// event history. Slow subscribers drop events instead of stalling the run.
type Bus struct {
	mu       sync.RWMutex
	subs     map[SubscriptionID]*Subscription
	typed    map[EventType]map[SubscriptionID]*Subscription
	wildcard map[SubscriptionID]*Subscription
	counter  atomic.Uint64
	dropped  atomic.Uint64

	history     []Event
	historyMu   sync.RWMutex
	historySize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewBus creates a bus with the default history size.
func NewBus() *Bus {
	return NewBusWithConfig(DefaultHistorySize)
}

// NewBusWithConfig creates a bus retaining historySize events.
func NewBusWithConfig(historySize int) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:        make(map[SubscriptionID]*Subscription),
		typed:       make(map[EventType]map[SubscriptionID]*Subscription),
		wildcard:    make(map[SubscriptionID]*Subscription),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers handler for eventType. EventType("") subscribes to
// every event. It returns "" on a closed bus.
func (b *Bus) Subscribe(eventType EventType, handler func(Event)) SubscriptionID {
	if b.closed.Load() {
		return ""
	}

	id := SubscriptionID(fmt.Sprintf("sub_%d", b.counter.Add(1)))
	sub := &Subscription{
		ID:        id,
		EventType: eventType,
		Handler:   handler,
		Channel:   make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[id] = sub
	if eventType == "" {
		b.wildcard[id] = sub
	} else {
		if b.typed[eventType] == nil {
			b.typed[eventType] = make(map[SubscriptionID]*Subscription)
		}
		b.typed[eventType][id] = sub
	}
	b.mu.Unlock()

	b.wg.Add(1)
	go b.handleSubscription(sub)
	return id
}

func (b *Bus) handleSubscription(sub *Subscription) {
	defer b.wg.Done()
	for {
		select {
		case event := <-sub.Channel:
			sub.Handler(event)
		case <-sub.done:
			return
		case <-b.ctx.Done():
			return
		}
	}
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(b.subs, id)
	if sub.EventType == "" {
		delete(b.wildcard, id)
	} else if subs, ok := b.typed[sub.EventType]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.typed, sub.EventType)
		}
	}
	b.mu.Unlock()

	close(sub.done)
	return nil
}

// Publish records event in the history and hands it to every matching
// subscriber.
func (b *Bus) Publish(event Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.addToHistory(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.wildcard {
		b.deliver(sub, event)
	}
	for _, sub := range b.typed[event.Type] {
		b.deliver(sub, event)
	}
	return nil
}

func (b *Bus) deliver(sub *Subscription, event Event) {
	select {
	case sub.Channel <- event:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bus) addToHistory(event Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = append(b.history, event)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// History returns a copy of the retained events, oldest first.
func (b *Bus) History() []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// HistorySlice returns the last n retained events.
func (b *Bus) HistorySlice(n int) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	n = max(0, min(n, len(b.history)))
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// SubscriptionsCount returns the number of active subscriptions.
func (b *Bus) SubscriptionsCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were dropped on full channels.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops every subscription goroutine. Events still queued are
// discarded.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	b.subs = make(map[SubscriptionID]*Subscription)
	b.typed = make(map[EventType]map[SubscriptionID]*Subscription)
	b.wildcard = make(map[SubscriptionID]*Subscription)
	b.mu.Unlock()
	return nil
}
