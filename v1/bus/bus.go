// Package bus provides the best-effort broadcast channel between contexts.
// Delivery is advisory: messages may be dropped, duplicated or reordered,
// and consumers must re-derive truth from the ledger when it matters.
package bus

import "context"

// Bus is a payload-carrying pub/sub channel scoped by topic.
type Bus interface {
	// Publish sends data to all current subscribers of topic.
	Publish(ctx context.Context, topic string, data []byte) error
	// Subscribe returns a channel receiving payloads for topic until the
	// context is canceled or Unsubscribe is called. Slow receivers may miss
	// messages.
	Subscribe(ctx context.Context, topic string) (chan []byte, error)
	// Unsubscribe stops delivering topic payloads to ch and closes it.
	Unsubscribe(ctx context.Context, topic string, ch chan []byte) error
}
