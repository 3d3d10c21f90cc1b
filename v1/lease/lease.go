// Package lease holds the pure lease policy: given a lock record and the
// current time, it decides staleness, ownership and renewal eligibility. It
// performs no I/O.
package lease

import (
	"time"

	"github.com/mirkobrombin/go-editlock/v1/ledger"
)

const (
	// DefaultTimeout is how long a lease stays valid after its last renewal.
	DefaultTimeout = 5 * time.Minute
	// DefaultRenewalInterval is how often a holder rewrites its records. It
	// must be much smaller than the lease timeout so a live owner never
	// appears stale; the default ratio is 10:1.
	DefaultRenewalInterval = 30 * time.Second
)

// Stale reports whether the record's lease has aged past timeout, making it
// eligible for reclamation by any context.
func Stale(rec ledger.Record, now time.Time, timeout time.Duration) bool {
	return now.Sub(rec.RenewedAt) >= timeout
}

// Acquirable reports whether selfID may take the lock: the record is absent,
// already owned by selfID, or stale.
func Acquirable(rec ledger.Record, present bool, now time.Time, selfID string, timeout time.Duration) bool {
	if !present {
		return true
	}
	if rec.OwnerID == selfID {
		return true
	}
	return Stale(rec, now, timeout)
}

// Age returns how long ago the record was last renewed.
func Age(rec ledger.Record, now time.Time) time.Duration {
	return now.Sub(rec.RenewedAt)
}
