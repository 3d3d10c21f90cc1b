package bus

import (
	"context"
	"sync"
)

// InMemory is a local Bus implementation, mainly for tests and
// single-process setups.
type InMemory struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

// NewInMemory returns a new InMemory bus.
func NewInMemory() *InMemory {
	return &InMemory{subs: make(map[string][]chan []byte)}
}

// Publish implements Bus.Publish.
func (b *InMemory) Publish(ctx context.Context, topic string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b.mu.Lock()
	chans := append([]chan []byte(nil), b.subs[topic]...)
	b.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *InMemory) Subscribe(ctx context.Context, topic string) (chan []byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	ch := make(chan []byte, 1)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), topic, ch)
	}()
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *InMemory) Unsubscribe(ctx context.Context, topic string, ch chan []byte) error {
	b.mu.Lock()
	subs := b.subs[topic]
	for i, c := range subs {
		if c == ch {
			subs[i] = subs[len(subs)-1]
			subs = subs[:len(subs)-1]
			b.subs[topic] = subs
			close(c)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, topic)
	}
	b.mu.Unlock()
	return nil
}
