package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"homechat/internal/bus"
	"homechat/internal/status"
)

var upgrader = websocket.Upgrader{}

// newTestTransport wires a transport against a test websocket server.
// The handler receives each accepted connection.
func newTestTransport(t *testing.T, handler func(conn *websocket.Conn)) (*Transport, *bus.Bus) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/chat/ws/") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	b := bus.New()
	machine := status.NewMachine(b, zap.NewNop())
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	tr := New(endpoint, 1, b, machine, zap.NewNop())
	tr.heartbeatEvery = 20 * time.Millisecond
	tr.retryAfter = 20 * time.Millisecond
	return tr, b
}

func waitEvent(t *testing.T, events <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestPublishesInboundEvents(t *testing.T) {
	tr, b := newTestTransport(t, func(conn *websocket.Conn) {
		defer conn.Close()
		frame := `{"type":"message","data":{"id":9,"conversation_id":3,"sender_id":2,"content":"hi","created_at":"2026-08-30T10:00:00"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	events, unsub := b.Subscribe("transport.message", 8)
	defer unsub()

	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	ev := waitEvent(t, events, "transport.message")
	msg, ok := ev.Payload.(MessageEvent)
	if !ok {
		t.Fatalf("payload type %T", ev.Payload)
	}
	if msg.ID != 9 || msg.Content != "hi" {
		t.Errorf("message = %+v", msg)
	}
}

func TestHeartbeatPingPong(t *testing.T) {
	tr, b := newTestTransport(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			var frame struct {
				Type string `json:"type"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Type == "ping" {
				if err := conn.WriteJSON(map[string]string{"type": "pong"}); err != nil {
					return
				}
			}
		}
	})

	events, unsub := b.Subscribe("transport.heartbeat_ack", 8)
	defer unsub()

	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	waitEvent(t, events, "transport.heartbeat_ack")
}

// A dropped connection is retried until it comes back; the status machine
// walks CONNECTED -> RECONNECTING -> CONNECTING -> CONNECTED.
func TestReconnectAfterDrop(t *testing.T) {
	var conns atomic.Int32
	tr, b := newTestTransport(t, func(conn *websocket.Conn) {
		n := conns.Add(1)
		if n == 1 {
			// Drop the first connection immediately.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	events, unsub := b.Subscribe("transport.status_changed", 16)
	defer unsub()

	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	sawReconnecting := false
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			change := ev.Payload.(status.Change)
			if change.To == status.StateReconnecting {
				sawReconnecting = true
			}
			if sawReconnecting && change.To == status.StateConnected {
				if conns.Load() < 2 {
					t.Errorf("reconnected with %d server connections", conns.Load())
				}
				return
			}
		case <-deadline:
			t.Fatal("never reconnected")
		}
	}
}

func TestStopTransitionsToDisconnected(t *testing.T) {
	tr, _ := newTestTransport(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Double start is rejected.
	if err := tr.Start(context.Background()); err == nil {
		t.Error("second Start succeeded")
	}

	tr.Stop()
	if got := tr.machine.Current(); got != status.StateDisconnected {
		t.Errorf("state after Stop = %s, want DISCONNECTED", got)
	}
	// Stop again is a no-op.
	tr.Stop()
}
