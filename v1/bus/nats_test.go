package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	nats "github.com/nats-io/nats.go"
)

func newNATSBus(t *testing.T) (*NATS, context.Context) {
	t.Helper()
	addr := os.Getenv("EDITLOCK_TEST_NATS_ADDR")

	var conn *nats.Conn
	var s *server.Server
	var err error

	if addr != "" {
		t.Logf("using real NATS at %s", addr)
		conn, err = nats.Connect(addr)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
	} else {
		s = natsserver.RunRandClientPortServer()
		conn, err = nats.Connect(s.ClientURL())
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
	}

	b := NewNATS(conn)
	t.Cleanup(func() {
		conn.Close()
		if s != nil {
			s.Shutdown()
		}
	})
	return b, context.Background()
}

func TestNATSBusPublishSubscribe(t *testing.T) {
	b, ctx := newNATSBus(t)

	ch, err := b.Subscribe(ctx, "topic")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Publish(ctx, "topic", []byte("payload")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case data := <-ch:
		if string(data) != "payload" {
			t.Fatalf("unexpected payload %q", data)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for payload")
	}
}

func TestNATSBusMultipleSubscribersSameTopic(t *testing.T) {
	b, ctx := newNATSBus(t)

	ch1, err := b.Subscribe(ctx, "topic")
	if err != nil {
		t.Fatalf("subscribe 1: %v", err)
	}
	ch2, err := b.Subscribe(ctx, "topic")
	if err != nil {
		t.Fatalf("subscribe 2: %v", err)
	}
	if err := b.Publish(ctx, "topic", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i, ch := range []chan []byte{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive payload", i+1)
		}
	}
}

func TestNATSBusPublishFailsFastWhenDisconnected(t *testing.T) {
	s := natsserver.RunRandClientPortServer()
	conn, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	b := NewNATS(conn)
	conn.Close()
	s.Shutdown()

	start := time.Now()
	err = b.Publish(context.Background(), "topic", []byte("x"))
	if err == nil {
		t.Fatal("publish on a closed connection did not error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("publish took %v to fail", elapsed)
	}
}

func TestNATSBusUnsubscribe(t *testing.T) {
	b, ctx := newNATSBus(t)

	ch, err := b.Subscribe(ctx, "topic")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Unsubscribe(ctx, "topic", ch); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
}
