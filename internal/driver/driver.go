// Package driver defines the capability interface every printer back-end
// implements. Back-ends report asynchronous results through callbacks; they
// never hold printer manager state.
package driver

import (
	"context"
	"errors"

	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/job"
)

var (
	// ErrAdapterUnavailable means no Bluetooth adapter is present or powered
	ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")
	// ErrPermissionDenied means the OS refused radio access
	ErrPermissionDenied = errors.New("bluetooth permission denied")
	// ErrRejected means the connect primitive refused the target synchronously
	ErrRejected = errors.New("connection rejected")
	// ErrUnsupported marks an operation the back-end cannot perform
	ErrUnsupported = errors.New("operation not supported")
	// ErrNotConnected is returned by I/O on a closed link
	ErrNotConnected = errors.New("printer link not open")
)

// LinkState is a snapshot of the hardware link
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDisconnecting
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "disconnected"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// LinkEventKind classifies a link report
type LinkEventKind int

const (
	// LinkUp confirms a connect
	LinkUp LinkEventKind = iota
	// LinkFailed reports a connect that will not complete
	LinkFailed
	// LinkDown reports a link that closed, requested or not
	LinkDown
)

func (k LinkEventKind) String() string {
	switch k {
	case LinkUp:
		return "up"
	case LinkFailed:
		return "failed"
	case LinkDown:
		return "down"
	default:
		return "unknown"
	}
}

// LinkEvent is delivered by a back-end from any goroutine
type LinkEvent struct {
	Kind     LinkEventKind
	DeviceID string
	Err      error
}

// Discovery is a raw scan result; back-ends may report the same device many times
type Discovery struct {
	ID   string
	Name string
	RSSI *int
}

// Driver is a printer back-end. Callbacks may be invoked from any goroutine,
// may arrive late, and may never arrive at all.
type Driver interface {
	Name() string

	// StartDiscovery begins scanning and reports every raw result to found
	StartDiscovery(found func(Discovery)) error
	// StopDiscovery cancels scanning; it is a no-op when not scanning
	StopDiscovery() error

	// Resolve maps an id that was not discovered in this session (a raw
	// address) to a device
	Resolve(id string) (device.Device, bool)

	// Connect starts connecting and returns without waiting for the link.
	// The outcome, if any, is delivered to report.
	Connect(dev device.Device, report func(LinkEvent)) error
	// Disconnect starts closing the link to dev; completion is reported as LinkDown
	Disconnect(dev device.Device) error
	// LinkState returns the current link state without blocking on I/O
	LinkState(dev device.Device) LinkState

	// Status queries the printer's status code
	Status(ctx context.Context) (int, error)
	// Transmit sends a built job to the connected printer
	Transmit(ctx context.Context, j *job.PrintJob) error
	// CancelPrint aborts an in-flight transmission, best effort
	CancelPrint() error
}

// ForcedConnector is implemented by back-ends that can open a link to a
// device the normal connect primitive refuses, such as an unpaired printer
type ForcedConnector interface {
	ForceConnect(dev device.Device, report func(LinkEvent)) error
}

// Closer is implemented by back-ends holding resources beyond a single link
type Closer interface {
	Close() error
}
