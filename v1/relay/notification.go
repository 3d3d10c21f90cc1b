package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type tags a Notification.
type Type string

const (
	// TypeAcquired announces that a context took a lock.
	TypeAcquired Type = "acquired"
	// TypeReleased announces that a context gave a lock back.
	TypeReleased Type = "released"
	// TypePing announces a lease renewal by the current holder.
	TypePing Type = "ping"
)

var (
	errMissingResource = errors.New("notification missing resourceId")
	errMissingOwner    = errors.New("notification missing ownerId")
)

// Notification is the transient message exchanged on the bus. It is a hint,
// never ground truth: receivers must consult the coordinator's Status before
// acting on it.
type Notification struct {
	Type       Type   `json:"type"`
	ResourceID string `json:"resourceId"`
	OwnerID    string `json:"ownerId"`
	// Nonce uniquely identifies a message so redeliveries can be discarded
	// best-effort. Set by the relay on publish.
	Nonce string `json:"nonce,omitempty"`
}

// Validate checks the message shape.
func (n Notification) Validate() error {
	switch n.Type {
	case TypeAcquired, TypeReleased, TypePing:
	default:
		return fmt.Errorf("unknown notification type %q", n.Type)
	}
	if n.ResourceID == "" {
		return errMissingResource
	}
	if n.OwnerID == "" {
		return errMissingOwner
	}
	return nil
}

// Encode serializes the notification for the bus.
func Encode(n Notification) ([]byte, error) {
	return json.Marshal(n)
}

// Decode parses and validates a bus payload.
func Decode(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, err
	}
	if err := n.Validate(); err != nil {
		return Notification{}, err
	}
	return n, nil
}
