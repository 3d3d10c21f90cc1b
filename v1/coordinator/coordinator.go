// Package coordinator arbitrates exclusive-edit access to shared resources
// across independent contexts that share a durable ledger and a best-effort
// notification bus but no memory. One Coordinator is created per context; it
// keeps the set of resources it believes it holds and renews their leases in
// the background. A held lock can still be lost involuntarily, so callers
// must recheck Status before destructive edits.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-editlock/v1/bus"
	editlockerrors "github.com/mirkobrombin/go-editlock/v1/errors"
	"github.com/mirkobrombin/go-editlock/v1/identity"
	"github.com/mirkobrombin/go-editlock/v1/ledger"
	"github.com/mirkobrombin/go-editlock/v1/lease"
	"github.com/mirkobrombin/go-editlock/v1/metrics"
	"github.com/mirkobrombin/go-editlock/v1/relay"
)

// Status describes a resource's lock state as derived from the ledger. A
// stale record reports as unlocked regardless of its stored owner.
type Status struct {
	Locked      bool
	OwnedBySelf bool
	HolderID    string
	LeaseAge    time.Duration
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	ownerID         string
	topic           string
	clock           lease.Clock
	leaseTimeout    time.Duration
	renewalInterval time.Duration
}

// WithOwnerID overrides the generated per-context owner id.
func WithOwnerID(id string) Option {
	return func(o *options) {
		o.ownerID = id
	}
}

// WithTopic overrides the bus topic carrying notifications.
func WithTopic(topic string) Option {
	return func(o *options) {
		o.topic = topic
	}
}

// WithClock injects the wall-clock source.
func WithClock(c lease.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLeaseTimeout sets how long a lease stays valid without renewal.
func WithLeaseTimeout(d time.Duration) Option {
	return func(o *options) {
		o.leaseTimeout = d
	}
}

// WithRenewalInterval sets how often held leases are renewed. It must be
// much smaller than the lease timeout.
func WithRenewalInterval(d time.Duration) Option {
	return func(o *options) {
		o.renewalInterval = d
	}
}

// Coordinator owns the per-context lock state: the held set and the
// background renewal loop. It is safe for concurrent use.
type Coordinator struct {
	ledger          ledger.Ledger
	relay           *relay.Relay
	clock           lease.Clock
	ownerID         string
	leaseTimeout    time.Duration
	renewalInterval time.Duration

	mu     sync.Mutex
	held   map[string]struct{}
	closed bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New returns a Coordinator using led as the authoritative lock ledger and b
// to exchange advisory notifications, and starts its renewal loop.
func New(led ledger.Ledger, b bus.Bus, opts ...Option) (*Coordinator, error) {
	o := options{
		topic:           relay.DefaultTopic,
		clock:           lease.SystemClock{},
		leaseTimeout:    lease.DefaultTimeout,
		renewalInterval: lease.DefaultRenewalInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ownerID == "" {
		id, err := identity.NewID()
		if err != nil {
			return nil, err
		}
		o.ownerID = id
	}
	rel, err := relay.New(b, o.topic, o.ownerID)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		ledger:          led,
		relay:           rel,
		clock:           o.clock,
		ownerID:         o.ownerID,
		leaseTimeout:    o.leaseTimeout,
		renewalInterval: o.renewalInterval,
		held:            make(map[string]struct{}),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	go c.renewLoop()
	return c, nil
}

// OwnerID returns the opaque identifier of this context.
func (c *Coordinator) OwnerID() string {
	return c.ownerID
}

// Relay exposes the notification relay, e.g. to register observers or mount
// the HTTP bridge.
func (c *Coordinator) Relay() *relay.Relay {
	return c.relay
}

// Held returns the resources this context currently believes it holds.
func (c *Coordinator) Held() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.held))
	for id := range c.held {
		ids = append(ids, id)
	}
	return ids
}

// Acquire attempts to take the exclusive lock on resourceID. It returns
// (false, nil) when another context holds a live lease and (false, err) when
// the ledger could not confirm state, so callers can tell "held by someone
// else" from "try again".
//
// When the ledger implements ledger.Conditional the initial write is atomic.
// Otherwise the check and the write are two separate store operations: two
// contexts can both observe an acquirable record and both write. The last
// write wins and the loser finds out on its next renewal or Status call.
func (c *Coordinator) Acquire(ctx context.Context, resourceID string) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, editlockerrors.ErrClosed
	}
	c.mu.Unlock()

	rec := ledger.Record{ResourceID: resourceID, OwnerID: c.ownerID, RenewedAt: c.clock.Now()}
	if cond, ok := c.ledger.(ledger.Conditional); ok {
		created, err := cond.PutIfAbsent(ctx, rec)
		if err != nil {
			return false, err
		}
		if created {
			if err := c.granted(ctx, resourceID); err != nil {
				return false, err
			}
			return true, nil
		}
		// A record exists; it may still be ours or stale.
	}

	cur, present, err := c.ledger.Get(ctx, resourceID)
	if err != nil {
		// Fail closed: never assume an unconfirmed acquire succeeded.
		return false, err
	}
	if !lease.Acquirable(cur, present, rec.RenewedAt, c.ownerID, c.leaseTimeout) {
		metrics.AcquireDeniedCounter.Inc()
		return false, nil
	}
	if err := c.ledger.Put(ctx, rec); err != nil {
		return false, err
	}
	if err := c.granted(ctx, resourceID); err != nil {
		return false, err
	}
	return true, nil
}

// granted records a successful ledger write in the held set. When Close ran
// while the write was in flight the record would otherwise outlive the
// coordinator unrenewed, so the write is rolled back instead.
func (c *Coordinator) granted(ctx context.Context, resourceID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		var err error
		if cond, ok := c.ledger.(ledger.Conditional); ok {
			err = cond.DeleteIfOwner(ctx, resourceID, c.ownerID)
		} else {
			err = c.ledger.Delete(ctx, resourceID)
		}
		if err != nil {
			slog.Warn("editlock: acquire rollback during close failed", "resource", resourceID, "error", err)
		}
		return editlockerrors.ErrClosed
	}
	_, already := c.held[resourceID]
	c.held[resourceID] = struct{}{}
	c.mu.Unlock()
	if !already {
		metrics.HeldGauge.Inc()
	}
	metrics.AcquireGrantedCounter.Inc()
	c.relay.Publish(ctx, relay.Notification{Type: relay.TypeAcquired, ResourceID: resourceID, OwnerID: c.ownerID})
	return nil
}

// Release gives the lock on resourceID back. Releasing a resource this
// context never held is a no-op, not an error.
func (c *Coordinator) Release(ctx context.Context, resourceID string) error {
	c.mu.Lock()
	if _, held := c.held[resourceID]; !held {
		c.mu.Unlock()
		return nil
	}
	delete(c.held, resourceID)
	c.mu.Unlock()
	metrics.HeldGauge.Dec()

	var err error
	if cond, ok := c.ledger.(ledger.Conditional); ok {
		err = cond.DeleteIfOwner(ctx, resourceID, c.ownerID)
	} else {
		err = c.ledger.Delete(ctx, resourceID)
	}
	if err != nil {
		// The record is no longer renewed and will go stale on its own.
		return err
	}
	metrics.ReleaseCounter.Inc()
	c.relay.Publish(ctx, relay.Notification{Type: relay.TypeReleased, ResourceID: resourceID, OwnerID: c.ownerID})
	return nil
}

// ReleaseAll releases exactly the resources currently held, concurrently and
// best-effort: every release is attempted and the first error is returned.
// It is intended for shutdown hooks.
func (c *Coordinator) ReleaseAll(ctx context.Context) error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.held))
	for id := range c.held {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return c.Release(ctx, id)
		})
	}
	return g.Wait()
}

// Status derives the lock state of resourceID from the ledger.
func (c *Coordinator) Status(ctx context.Context, resourceID string) (Status, error) {
	rec, present, err := c.ledger.Get(ctx, resourceID)
	if err != nil {
		return Status{}, err
	}
	now := c.clock.Now()
	if !present || lease.Stale(rec, now, c.leaseTimeout) {
		return Status{}, nil
	}
	return Status{
		Locked:      true,
		OwnedBySelf: rec.OwnerID == c.ownerID,
		HolderID:    rec.OwnerID,
		LeaseAge:    lease.Age(rec, now),
	}, nil
}

// Close marks the coordinator closed, stops the renewal loop, releases every
// held resource and detaches the relay from the bus, in that order. Marking
// closed first means an Acquire in flight either lands in the held set
// before ReleaseAll snapshots it or is rolled back by granted; no record can
// slip through unreleased. Close is idempotent.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stop)
		<-c.done
		c.closeErr = c.ReleaseAll(ctx)
		if err := c.relay.Close(); c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

func (c *Coordinator) renewLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.renewalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.renewHeld(context.Background())
		case <-c.stop:
			return
		}
	}
}

// renewHeld rewrites RenewedAt for every record still owned by this context
// and drops resources whose lock turned out to be held by someone else. Loss
// is not surfaced to callers here; they see it through Status.
func (c *Coordinator) renewHeld(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.held))
	for id := range c.held {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		rec, present, err := c.ledger.Get(ctx, id)
		if err != nil {
			slog.Warn("editlock: renewal read failed", "resource", id, "error", err)
			continue
		}
		if !present || rec.OwnerID != c.ownerID {
			c.mu.Lock()
			_, was := c.held[id]
			delete(c.held, id)
			c.mu.Unlock()
			if was {
				metrics.LostLeaseCounter.Inc()
				metrics.HeldGauge.Dec()
				slog.Warn("editlock: lease lost to another context", "resource", id, "holder", rec.OwnerID)
			}
			continue
		}
		rec.RenewedAt = c.clock.Now()
		if err := c.ledger.Put(ctx, rec); err != nil {
			slog.Warn("editlock: renewal write failed", "resource", id, "error", err)
			continue
		}
		metrics.RenewalCounter.Inc()
		c.relay.Publish(ctx, relay.Notification{Type: relay.TypePing, ResourceID: id, OwnerID: c.ownerID})
	}
}
