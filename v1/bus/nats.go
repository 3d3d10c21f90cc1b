package bus

import (
	"context"
	"sync"

	nats "github.com/nats-io/nats.go"
)

type natsSubscription struct {
	sub   *nats.Subscription
	chans []chan []byte
}

// NATS implements Bus using a NATS backend.
type NATS struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*natsSubscription
}

// NewNATS returns a new NATS bus using the provided connection.
func NewNATS(conn *nats.Conn) *NATS {
	return &NATS{conn: conn, subs: make(map[string]*natsSubscription)}
}

// Publish implements Bus.Publish. The bus is fire-and-forget: a failed
// publish is retried once after a reconnect attempt, then surfaced, so a
// dead connection never stalls the caller.
func (b *NATS) Publish(ctx context.Context, topic string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	err := b.conn.Publish(topic, data)
	if err == nil {
		return nil
	}
	if rerr := b.reconnect(); rerr != nil {
		return err
	}
	return b.conn.Publish(topic, data)
}

// Subscribe implements Bus.Subscribe.
func (b *NATS) Subscribe(ctx context.Context, topic string) (chan []byte, error) {
	ch := make(chan []byte, 1)

	b.mu.Lock()
	sub := b.subs[topic]
	if sub != nil {
		sub.chans = append(sub.chans, ch)
		b.mu.Unlock()
	} else {
		ns, err := b.conn.Subscribe(topic, b.natsHandler(topic))
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		b.subs[topic] = &natsSubscription{sub: ns, chans: []chan []byte{ch}}
		b.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), topic, ch)
	}()
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *NATS) Unsubscribe(ctx context.Context, topic string, ch chan []byte) error {
	b.mu.Lock()
	sub := b.subs[topic]
	if sub == nil {
		b.mu.Unlock()
		return nil
	}
	for i, c := range sub.chans {
		if c == ch {
			sub.chans[i] = sub.chans[len(sub.chans)-1]
			sub.chans = sub.chans[:len(sub.chans)-1]
			close(c)
			break
		}
	}
	if len(sub.chans) == 0 {
		delete(b.subs, topic)
		b.mu.Unlock()
		return sub.sub.Unsubscribe()
	}
	b.mu.Unlock()
	return nil
}

func (b *NATS) natsHandler(topic string) nats.MsgHandler {
	return func(m *nats.Msg) {
		b.mu.Lock()
		sub := b.subs[topic]
		if sub == nil {
			b.mu.Unlock()
			return
		}
		chans := append([]chan []byte(nil), sub.chans...)
		b.mu.Unlock()

		for _, c := range chans {
			select {
			case c <- m.Data:
			default:
			}
		}
	}
}

func (b *NATS) reconnect() error {
	if b.conn != nil && b.conn.IsConnected() {
		return nil
	}
	newConn, err := b.conn.Opts.Connect()
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.conn = newConn
	for topic, sub := range b.subs {
		ns, err := b.conn.Subscribe(topic, b.natsHandler(topic))
		if err != nil {
			continue
		}
		sub.sub = ns
	}
	b.mu.Unlock()
	return nil
}
