package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"homechat/internal/bus"
	"homechat/internal/status"
)

const (
	heartbeatInterval = 30 * time.Second
	reconnectDelay    = 5 * time.Second
	writeTimeout      = 10 * time.Second
)

// Transport owns the realtime connection: one duplex websocket, a
// keep-alive ping every 30 seconds while connected, and a fixed 5 second
// reconnect loop that never gives up. A single goroutine runs the
// connect/read/reconnect cycle, so at most one attempt is ever in flight.
//
// Decoded events are published on the bus under "transport.*".
type Transport struct {
	endpoint string
	userID   int64

	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	// Overridable in tests to keep them fast.
	heartbeatEvery time.Duration
	retryAfter     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a transport for the given websocket endpoint, e.g.
// "ws://host:8000/chat/ws". The user id is appended to the path.
func New(endpoint string, userID int64, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Transport {
	return &Transport{
		endpoint:       endpoint,
		userID:         userID,
		bus:            b,
		machine:        machine,
		logger:         logger.Named("transport"),
		heartbeatEvery: heartbeatInterval,
		retryAfter:     reconnectDelay,
	}
}

// Start launches the connection loop. It returns immediately; connection
// state is observable through the status machine and bus events.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return errors.New("transport already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(runCtx)
	return nil
}

// Stop tears the connection down and waits for the loop to exit.
func (t *Transport) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Transport) url() string {
	return fmt.Sprintf("%s/%d", t.endpoint, t.userID)
}

func (t *Transport) run(ctx context.Context) {
	defer close(t.done)
	defer func() {
		_ = t.machine.Transition(status.StateDisconnected)
	}()

	for {
		if err := t.machine.Transition(status.StateConnecting); err != nil {
			t.logger.Error("status transition rejected", zap.Error(err))
		}

		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.url(), nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("dial failed", zap.String("url", t.url()), zap.Error(err))
		} else {
			_ = t.machine.Transition(status.StateConnected)
			t.logger.Info("connected", zap.String("url", t.url()))
			t.serve(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("connection lost")
		}

		_ = t.machine.Transition(status.StateReconnecting)
		select {
		case <-time.After(t.retryAfter):
		case <-ctx.Done():
			return
		}
	}
}

// serve reads frames until the connection drops. The heartbeat runs in a
// sibling goroutine and is the connection's only writer.
func (t *Transport) serve(ctx context.Context, conn *websocket.Conn) {
	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go t.heartbeat(hbCtx, conn)

	// Unblock ReadMessage when the parent context is cancelled.
	go func() {
		<-hbCtx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Warn("read failed", zap.Error(err))
			}
			return
		}
		t.dispatch(data)
	}
}

func (t *Transport) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(t.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
				t.logger.Warn("heartbeat write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

func (t *Transport) dispatch(data []byte) {
	ev, err := Decode(data)
	if err != nil {
		var unknown *UnknownEventError
		if errors.As(err, &unknown) {
			t.logger.Info("skipping unknown event", zap.String("type", unknown.Type))
		} else {
			t.logger.Warn("bad frame", zap.Error(err))
		}
		return
	}

	var kind string
	switch ev.(type) {
	case MessageEvent:
		kind = "transport.message"
	case NotificationEvent:
		kind = "transport.notification"
	case ReadReceiptEvent:
		kind = "transport.read_receipt"
	case HeartbeatAck:
		kind = "transport.heartbeat_ack"
	}
	t.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   ev,
	})
}
