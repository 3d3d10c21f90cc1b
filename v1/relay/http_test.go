package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mirkobrombin/go-editlock/v1/bus"
)

func waitObserver(t *testing.T, r *Relay) {
	t.Helper()
	for i := 0; i < 100; i++ {
		r.mu.Lock()
		n := len(r.observers)
		r.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("observer never registered")
}

func TestSSEHandlerStream(t *testing.T) {
	b := bus.NewInMemory()
	r, err := New(b, "", "ctx-a")
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	defer r.Close()

	srv := httptest.NewServer(SSEHandler(r))
	defer srv.Close()

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(srv.URL)
		if err != nil {
			t.Errorf("get: %v", err)
			return
		}
		respCh <- resp
	}()

	waitObserver(t, r)

	payload := []byte(`{"type":"acquired","resourceId":"proj-1","ownerId":"ctx-b"}`)
	if err := b.Publish(context.Background(), DefaultTopic, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var resp *http.Response
	select {
	case resp = <-respCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for response")
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var line string
	for {
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		line = strings.TrimSpace(line)
		if line != "" {
			break
		}
	}
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("unexpected line %q", line)
	}
	var n Notification
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &n); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if n.Type != TypeAcquired || n.ResourceID != "proj-1" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestWebSocketHandlerStream(t *testing.T) {
	b := bus.NewInMemory()
	r, err := New(b, "", "ctx-a")
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	defer r.Close()

	srv := httptest.NewServer(WebSocketHandler(r))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitObserver(t, r)

	payload := []byte(`{"type":"released","resourceId":"proj-2","ownerId":"ctx-b"}`)
	if err := b.Publish(context.Background(), DefaultTopic, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if n.Type != TypeReleased || n.ResourceID != "proj-2" {
		t.Fatalf("unexpected notification %+v", n)
	}
}
