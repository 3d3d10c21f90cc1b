// Package relay moves lock notifications between the coordinator and the
// bus. Outbound messages are fire-and-forget; inbound messages are validated
// and fanned out to registered observers.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mirkobrombin/go-editlock/v1/bus"
	"github.com/mirkobrombin/go-editlock/v1/metrics"
)

// DefaultTopic is the well-known bus topic carrying lock notifications.
const DefaultTopic = "editlock:notifications"

const seenTTL = time.Minute

// publishTimeout bounds a single outbound bus publish. The bus is advisory,
// so a slow or dead backend must never stall the lock operation that
// triggered the notification.
const publishTimeout = 2 * time.Second

// Handle identifies a registered observer.
type Handle uint64

// Relay owns the single bus subscription of a coordinator and dispatches
// inbound notifications to observers. Messages published by the relay's own
// context are discarded on receipt, so observers only hear about other
// contexts.
type Relay struct {
	bus    bus.Bus
	topic  string
	selfID string

	mu        sync.Mutex
	observers map[Handle]func(Notification)
	next      Handle
	seen      map[string]time.Time
	closed    bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New subscribes to topic on b and starts the inbound dispatch loop. selfID
// is the owner id of the local context, used to drop self-echoes.
func New(b bus.Bus, topic, selfID string) (*Relay, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, err
	}
	r := &Relay{
		bus:       b,
		topic:     topic,
		selfID:    selfID,
		observers: make(map[Handle]func(Notification)),
		seen:      make(map[string]time.Time),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go r.run(ch)
	return r, nil
}

// Publish sends a notification on the bus. The bus is advisory, so publish
// failures are logged and swallowed; they never fail the lock operation that
// triggered them.
func (r *Relay) Publish(ctx context.Context, n Notification) {
	n.Nonce = uuid.NewString()
	data, err := Encode(n)
	if err != nil {
		slog.Warn("editlock: notification encode failed", "type", n.Type, "resource", n.ResourceID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.bus.Publish(ctx, r.topic, data); err != nil {
		slog.Warn("editlock: notification publish failed", "type", n.Type, "resource", n.ResourceID, "error", err)
	}
}

// Observe registers fn to receive inbound notifications and returns a handle
// for Ignore.
func (r *Relay) Observe(fn func(Notification)) Handle {
	r.mu.Lock()
	r.next++
	h := r.next
	r.observers[h] = fn
	r.mu.Unlock()
	return h
}

// Ignore removes the observer registered under h.
func (r *Relay) Ignore(h Handle) {
	r.mu.Lock()
	delete(r.observers, h)
	r.mu.Unlock()
}

// Close stops the inbound loop and detaches from the bus. It is idempotent.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	<-r.done
	return nil
}

func (r *Relay) run(ch chan []byte) {
	defer close(r.done)
	for data := range ch {
		n, err := Decode(data)
		if err != nil {
			metrics.NotificationDroppedCounter.Inc()
			slog.Warn("editlock: dropping malformed notification", "error", err)
			continue
		}
		if n.OwnerID == r.selfID {
			metrics.NotificationDroppedCounter.Inc()
			continue
		}
		if r.duplicate(n.Nonce) {
			metrics.NotificationDroppedCounter.Inc()
			continue
		}
		r.dispatch(n)
	}
}

func (r *Relay) duplicate(nonce string) bool {
	if nonce == "" {
		return false
	}
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range r.seen {
		if now.Sub(t) > seenTTL {
			delete(r.seen, k)
		}
	}
	if _, ok := r.seen[nonce]; ok {
		return true
	}
	r.seen[nonce] = now
	return false
}

func (r *Relay) dispatch(n Notification) {
	r.mu.Lock()
	fns := make([]func(Notification), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("editlock: notification observer panicked", "type", n.Type, "resource", n.ResourceID, "panic", rec)
				}
			}()
			fn(n)
		}()
	}
}
