package relay

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// SSEHandler streams inbound notifications over Server-Sent Events, for UI
// consumers living outside the Go process.
func SSEHandler(r *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		ch := make(chan Notification, 16)
		h := r.Observe(func(n Notification) {
			select {
			case ch <- n:
			default:
			}
		})
		defer r.Ignore(h)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream unsupported", http.StatusInternalServerError)
			return
		}
		flusher.Flush()
		for {
			select {
			case n := <-ch:
				data, err := Encode(n)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				flusher.Flush()
			case <-ctx.Done():
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{}

// WebSocketHandler streams inbound notifications over WebSocket.
func WebSocketHandler(r *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx := req.Context()
		ch := make(chan Notification, 16)
		h := r.Observe(func(n Notification) {
			select {
			case ch <- n:
			default:
			}
		})
		defer r.Ignore(h)

		for {
			select {
			case n := <-ch:
				data, err := Encode(n)
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
