package identity

import "testing"

func TestNewIDUnique(t *testing.T) {
	a, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if a == "" {
		t.Fatal("empty id")
	}
	b, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if a == b {
		t.Fatalf("ids collided: %q", a)
	}
}
