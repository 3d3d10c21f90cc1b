// Package identity produces the opaque per-context owner identifier used to
// mark lock records and notifications.
package identity

import uuid "github.com/hashicorp/go-uuid"

// NewID returns a new opaque identifier. It is called once per coordinator
// lifetime; the value has no meaning beyond equality.
func NewID() (string, error) {
	return uuid.GenerateUUID()
}
