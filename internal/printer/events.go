package printer

import (
	"github.com/thereceipt/label-engine/internal/device"
)

// State is the connection lifecycle state
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConnectionEvent is emitted on every state transition. Device is the
// targeted printer; Reason explains a disconnected event that was not requested.
type ConnectionEvent struct {
	State  State
	Device *device.Device
	Reason error
}

// Snapshot is the connection state at one instant
type Snapshot struct {
	State  State          `json:"state"`
	Device *device.Device `json:"device,omitempty"`
}

// OnDeviceFound registers a listener for new devices in the scan session.
// Listeners run on the manager's goroutine and must not block or call back
// into the manager synchronously.
func (m *Manager) OnDeviceFound(fn func(device.Device)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.onDeviceFound = append(m.onDeviceFound, fn)
}

// OnConnectionChange registers a listener for connection events, with the
// same restrictions as OnDeviceFound
func (m *Manager) OnConnectionChange(fn func(ConnectionEvent)) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.onConnection = append(m.onConnection, fn)
}

func (m *Manager) emitDevice(dev device.Device) {
	m.lmu.RLock()
	listeners := m.onDeviceFound
	m.lmu.RUnlock()

	for _, fn := range listeners {
		fn(dev)
	}
}

func (m *Manager) emitConnection(ev ConnectionEvent) {
	m.lmu.RLock()
	listeners := m.onConnection
	m.lmu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
