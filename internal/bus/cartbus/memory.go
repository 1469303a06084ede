package cartbus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/printforge/cartsync/errs"
	"github.com/printforge/cartsync/internal/schema"
)

// MemoryBus is an in-memory implementation of the cart bus.
type MemoryBus struct {
	cfg MemoryConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	subscribers  map[schema.EventType]map[SubscriptionID]*subscriber
	index        map[SubscriptionID]schema.EventType
	shutdownOnce sync.Once
	nextID       uint64
}

type subscriber struct {
	ch   chan *schema.CartEvent
	once sync.Once
}

// NewMemoryBus constructs a memory-backed cart bus.
func NewMemoryBus(cfg MemoryConfig) *MemoryBus {
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	bus := new(MemoryBus)
	bus.cfg = cfg
	bus.ctx = ctx
	bus.cancel = cancel
	bus.subscribers = make(map[schema.EventType]map[SubscriptionID]*subscriber)
	bus.index = make(map[SubscriptionID]schema.EventType)
	return bus
}

// Publish fan-outs the event to all subscribers of its type. Saturated
// subscriber queues drop the event rather than blocking the publisher; a
// dropped signal is recovered by the next event, since subscribers re-read
// the cart rather than consuming event payloads.
func (b *MemoryBus) Publish(ctx context.Context, evt *schema.CartEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if evt == nil {
		return nil
	}
	if err := evt.Validate(); err != nil {
		return err
	}
	select {
	case <-b.ctx.Done():
		return errs.New("cartbus/publish", errs.CodeUnavailable, errs.WithMessage("bus closed"))
	case <-ctx.Done():
		return fmt.Errorf("publish context: %w", ctx.Err())
	default:
	}

	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subscribers[evt.Type]))
	for _, sub := range b.subscribers[evt.Type] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe registers interest in one event type and returns the delivery channel.
func (b *MemoryBus) Subscribe(ctx context.Context, typ schema.EventType) (SubscriptionID, <-chan *schema.CartEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if typ == "" {
		return "", nil, errs.New("cartbus/subscribe", errs.CodeInvalid, errs.WithMessage("event type required"))
	}
	select {
	case <-b.ctx.Done():
		return "", nil, errs.New("cartbus/subscribe", errs.CodeUnavailable, errs.WithMessage("bus closed"))
	case <-ctx.Done():
		return "", nil, fmt.Errorf("subscribe context: %w", ctx.Err())
	default:
	}

	sub := &subscriber{ch: make(chan *schema.CartEvent, b.cfg.BufferSize)}
	id := SubscriptionID(strconv.FormatUint(atomic.AddUint64(&b.nextID, 1), 10))

	b.mu.Lock()
	if b.subscribers[typ] == nil {
		b.subscribers[typ] = make(map[SubscriptionID]*subscriber)
	}
	b.subscribers[typ][id] = sub
	b.index[id] = typ
	b.mu.Unlock()

	return id, sub.ch, nil
}

// Unsubscribe removes the subscription and closes its channel.
func (b *MemoryBus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	typ, ok := b.index[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	sub := b.subscribers[typ][id]
	delete(b.subscribers[typ], id)
	delete(b.index, id)
	b.mu.Unlock()
	if sub != nil {
		sub.close()
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *MemoryBus) Close() {
	b.shutdownOnce.Do(func() {
		b.cancel()
		b.mu.Lock()
		for _, subs := range b.subscribers {
			for _, sub := range subs {
				sub.close()
			}
		}
		b.subscribers = make(map[schema.EventType]map[SubscriptionID]*subscriber)
		b.index = make(map[SubscriptionID]schema.EventType)
		b.mu.Unlock()
	})
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.ch)
	})
}
