package ledger

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryGetPutDelete(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if _, ok, err := l.Get(ctx, "r"); err != nil || ok {
		t.Fatalf("expected absent record, ok %v err %v", ok, err)
	}
	rec := Record{ResourceID: "r", OwnerID: "a", RenewedAt: time.Now()}
	if err := l.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := l.Get(ctx, "r")
	if err != nil || !ok {
		t.Fatalf("get: %v ok %v", err, ok)
	}
	if got.OwnerID != "a" {
		t.Fatalf("unexpected owner %q", got.OwnerID)
	}
	if err := l.Delete(ctx, "r"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := l.Get(ctx, "r"); ok {
		t.Fatal("record survived delete")
	}
	if err := l.Delete(ctx, "r"); err != nil {
		t.Fatalf("deleting absent record: %v", err)
	}
}

func TestInMemoryPutIfAbsent(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	created, err := l.PutIfAbsent(ctx, Record{ResourceID: "r", OwnerID: "a"})
	if err != nil || !created {
		t.Fatalf("first put-if-absent: created %v err %v", created, err)
	}
	created, err = l.PutIfAbsent(ctx, Record{ResourceID: "r", OwnerID: "b"})
	if err != nil || created {
		t.Fatalf("second put-if-absent should not create, created %v err %v", created, err)
	}
	got, _, _ := l.Get(ctx, "r")
	if got.OwnerID != "a" {
		t.Fatalf("owner overwritten to %q", got.OwnerID)
	}
}

func TestInMemoryDeleteIfOwner(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	_ = l.Put(ctx, Record{ResourceID: "r", OwnerID: "a"})
	if err := l.DeleteIfOwner(ctx, "r", "b"); err != nil {
		t.Fatalf("delete-if-owner: %v", err)
	}
	if _, ok, _ := l.Get(ctx, "r"); !ok {
		t.Fatal("record deleted by non-owner")
	}
	if err := l.DeleteIfOwner(ctx, "r", "a"); err != nil {
		t.Fatalf("delete-if-owner: %v", err)
	}
	if _, ok, _ := l.Get(ctx, "r"); ok {
		t.Fatal("record not deleted by owner")
	}
}
