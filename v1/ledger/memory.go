package ledger

import (
	"context"
	"sync"
)

// InMemory is a Ledger implementation backed by a map. It is intended for
// single-process use and tests; records do not survive the process.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewInMemory returns a new InMemory ledger.
func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]Record)}
}

// Get implements Ledger.Get.
func (l *InMemory) Get(ctx context.Context, resourceID string) (Record, bool, error) {
	l.mu.RLock()
	rec, ok := l.records[resourceID]
	l.mu.RUnlock()
	if !ok {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Put implements Ledger.Put.
func (l *InMemory) Put(ctx context.Context, rec Record) error {
	l.mu.Lock()
	l.records[rec.ResourceID] = rec
	l.mu.Unlock()
	return nil
}

// Delete implements Ledger.Delete.
func (l *InMemory) Delete(ctx context.Context, resourceID string) error {
	l.mu.Lock()
	delete(l.records, resourceID)
	l.mu.Unlock()
	return nil
}

// PutIfAbsent implements Conditional.PutIfAbsent.
func (l *InMemory) PutIfAbsent(ctx context.Context, rec Record) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[rec.ResourceID]; ok {
		return false, nil
	}
	l.records[rec.ResourceID] = rec
	return true, nil
}

// DeleteIfOwner implements Conditional.DeleteIfOwner.
func (l *InMemory) DeleteIfOwner(ctx context.Context, resourceID, ownerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[resourceID]; ok && rec.OwnerID == ownerID {
		delete(l.records, resourceID)
	}
	return nil
}
