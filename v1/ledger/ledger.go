// Package ledger provides the durable, authoritative store of lock records.
// The ledger is the single source of truth for lock ownership; the
// notification bus only carries hints about it.
package ledger

import (
	"context"
	"time"
)

// Record is one lock record, keyed by the resource it protects.
type Record struct {
	ResourceID string    `json:"resource_id"`
	OwnerID    string    `json:"owner_id"`
	RenewedAt  time.Time `json:"renewed_at"`
}

// Ledger abstracts the durable keyed store holding lock records, scoped to a
// dedicated lock table distinct from application documents.
//
// Store failures surface as errors and must propagate to the caller; they are
// never interpreted as "not locked".
type Ledger interface {
	// Get retrieves the record for a resource. The boolean return indicates
	// whether a record was found.
	Get(ctx context.Context, resourceID string) (Record, bool, error)
	// Put writes the record, replacing any existing one for the resource.
	Put(ctx context.Context, rec Record) error
	// Delete removes the record for a resource. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, resourceID string) error
}

// Conditional is implemented by ledgers whose backing store offers atomic
// conditional writes. When available, the coordinator uses it to close the
// read-then-write race window on acquire.
type Conditional interface {
	// PutIfAbsent writes the record only if no record exists for the
	// resource. It returns true if the write took place.
	PutIfAbsent(ctx context.Context, rec Record) (bool, error)
	// DeleteIfOwner removes the record only if it is still owned by ownerID.
	DeleteIfOwner(ctx context.Context, resourceID, ownerID string) error
}
