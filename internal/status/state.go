package status

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"homechat/internal/bus"
)

// State is the connection state of the realtime transport.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
)

// Change is the payload published on "transport.status_changed".
type Change struct {
	From State
	To   State
}

var validTransitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateReconnecting, StateDisconnected},
	StateConnected:    {StateReconnecting, StateDisconnected},
	StateReconnecting: {StateConnecting, StateDisconnected},
}

// Machine tracks connection state and publishes transitions on the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time

	bus    *bus.Bus
	logger *zap.Logger
}

func NewMachine(b *bus.Bus, logger *zap.Logger) *Machine {
	return &Machine{
		current: StateDisconnected,
		since:   time.Now(),
		bus:     b,
		logger:  logger.Named("status"),
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition moves the machine to the given state. Invalid transitions are
// rejected with an error. A transition to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !allowed(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	m.current = to
	m.since = time.Now()
	m.mu.Unlock()

	m.logger.Info("connection state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	m.bus.Publish(bus.Event{
		Kind:      "transport.status_changed",
		Timestamp: time.Now(),
		Payload:   Change{From: from, To: to},
	})
	return nil
}

func allowed(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
