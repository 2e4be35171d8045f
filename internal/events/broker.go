package events

import (
	"context"
	"sync"
)

// Broker is an in-process Feed. Slow subscribers miss events rather than
// blocking publishers.
type Broker struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewBroker creates a broker whose subscriber channels hold buffer events
func NewBroker(buffer int) *Broker {
	return &Broker{subs: make(map[chan Event]struct{}), buffer: buffer}
}

func (b *Broker) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return ctx.Err()
}

func (b *Broker) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}
