package bus

import (
	"context"
	stdErrors "errors"
	"sync"

	redis "github.com/redis/go-redis/v9"

	editlockerrors "github.com/mirkobrombin/go-editlock/v1/errors"
)

type redisSubscription struct {
	pubsub *redis.PubSub
	chans  []chan []byte
}

// Redis implements Bus using Redis pub/sub.
type Redis struct {
	client *redis.Client
	mu     sync.Mutex
	subs   map[string]*redisSubscription
}

// NewRedis returns a new Redis bus using the provided client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, subs: make(map[string]*redisSubscription)}
}

// Publish implements Bus.Publish.
func (b *Redis) Publish(ctx context.Context, topic string, data []byte) error {
	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		if stdErrors.Is(err, redis.ErrClosed) {
			return editlockerrors.ErrConnectionClosed
		}
		return err
	}
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *Redis) Subscribe(ctx context.Context, topic string) (chan []byte, error) {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.subs[topic]
	if sub == nil {
		ps := b.client.Subscribe(ctx, topic)
		if _, err := ps.Receive(ctx); err != nil {
			return nil, err
		}
		sub = &redisSubscription{pubsub: ps, chans: []chan []byte{ch}}
		b.subs[topic] = sub
		go b.dispatch(topic, sub)
	} else {
		sub.chans = append(sub.chans, ch)
	}

	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), topic, ch)
	}()
	return ch, nil
}

func (b *Redis) dispatch(topic string, sub *redisSubscription) {
	for msg := range sub.pubsub.Channel() {
		b.mu.Lock()
		chans := append([]chan []byte(nil), sub.chans...)
		b.mu.Unlock()

		for _, c := range chans {
			select {
			case c <- []byte(msg.Payload):
			default:
			}
		}
	}
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *Redis) Unsubscribe(ctx context.Context, topic string, ch chan []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.subs[topic]
	if sub == nil {
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
		if sub.pubsub != nil {
			return sub.pubsub.Close()
		}
	}
	return nil
}
