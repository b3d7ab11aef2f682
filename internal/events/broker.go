package events

import (
	"context"
	"sync"
)

const subscriberBuffer = 16

// Publisher emits envelopes to subscribers.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Broker fans envelopes out to every live subscription. A subscription's
// channel is closed once its context is done.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context) (<-chan Envelope, error)
}

// MemoryBroker is an in-process Broker. Slow subscribers drop events rather
// than block publishers.
type MemoryBroker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Envelope
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[int]chan Envelope)}
}

func (b *MemoryBroker) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan Envelope, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// Subscribers reports the number of live subscriptions.
func (b *MemoryBroker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
