// Package drivertest provides a scriptable in-memory printer back-end.
package drivertest

import (
	"context"
	"sync"

	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/driver"
	"github.com/thereceipt/label-engine/internal/job"
)

// ConnectBehavior scripts what the fake does after Connect returns
type ConnectBehavior int

const (
	// Manual leaves the outcome to the test (Report, SetLinkState)
	Manual ConnectBehavior = iota
	// ConfirmByCallback reports LinkUp and marks the link connected
	ConfirmByCallback
	// ConfirmByState marks the link connected without any callback
	ConfirmByState
	// FailByCallback reports LinkFailed
	FailByCallback
	// Hang never completes and never reports
	Hang
)

// Fake is a driver.Driver whose hardware is scripted by the test
type Fake struct {
	mu sync.Mutex

	// StartErr is returned by StartDiscovery
	StartErr error
	// ConnectErr is returned by Connect
	ConnectErr error
	// TransmitErr is returned by Transmit
	TransmitErr error
	// StatusCode is returned by Status
	StatusCode int
	// Behavior applies to each Connect
	Behavior ConnectBehavior
	// AckDisconnect reports LinkDown when Disconnect is called
	AckDisconnect bool

	found     func(driver.Discovery)
	scanning  bool
	known     map[string]device.Device
	reports   map[string]func(driver.LinkEvent)
	states    map[string]driver.LinkState
	connects  []string
	discons   []string
	jobs      []*job.PrintJob
	cancels   int
	stopCalls int
}

// New creates a fake with manual connect behavior
func New() *Fake {
	return &Fake{
		known:   make(map[string]device.Device),
		reports: make(map[string]func(driver.LinkEvent)),
		states:  make(map[string]driver.LinkState),
	}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) StartDiscovery(found func(driver.Discovery)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	f.found = found
	f.scanning = true
	return nil
}

func (f *Fake) StopDiscovery() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanning = false
	f.stopCalls++
	return nil
}

// Discover delivers a raw scan result to the last discovery callback,
// whether or not the scan was stopped since
func (f *Fake) Discover(d driver.Discovery) {
	f.mu.Lock()
	found := f.found
	f.mu.Unlock()
	if found != nil {
		found(d)
	}
}

// Scanning reports whether discovery is active
func (f *Fake) Scanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

// StopCalls returns how many times StopDiscovery was called
func (f *Fake) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

// AddKnown makes id resolvable as a raw address
func (f *Fake) AddKnown(dev device.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known[dev.ID] = dev
}

func (f *Fake) Resolve(id string) (device.Device, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dev, ok := f.known[id]
	return dev, ok
}

func (f *Fake) Connect(dev device.Device, report func(driver.LinkEvent)) error {
	f.mu.Lock()
	f.connects = append(f.connects, dev.ID)
	if f.ConnectErr != nil {
		err := f.ConnectErr
		f.mu.Unlock()
		return err
	}
	return f.startLink(dev, report)
}

// startLink applies Behavior; it is called with f.mu held and releases it
func (f *Fake) startLink(dev device.Device, report func(driver.LinkEvent)) error {
	f.reports[dev.ID] = report
	f.states[dev.ID] = driver.LinkConnecting
	behavior := f.Behavior

	switch behavior {
	case ConfirmByCallback, ConfirmByState:
		f.states[dev.ID] = driver.LinkConnected
	case FailByCallback:
		f.states[dev.ID] = driver.LinkDisconnected
	}
	f.mu.Unlock()

	switch behavior {
	case ConfirmByCallback:
		go report(driver.LinkEvent{Kind: driver.LinkUp, DeviceID: dev.ID})
	case FailByCallback:
		go report(driver.LinkEvent{Kind: driver.LinkFailed, DeviceID: dev.ID, Err: driver.ErrRejected})
	}
	return nil
}

func (f *Fake) Disconnect(dev device.Device) error {
	f.mu.Lock()
	f.discons = append(f.discons, dev.ID)
	ack := f.AckDisconnect
	report := f.reports[dev.ID]
	if ack {
		f.states[dev.ID] = driver.LinkDisconnected
	} else if f.states[dev.ID] == driver.LinkConnected {
		f.states[dev.ID] = driver.LinkDisconnecting
	}
	f.mu.Unlock()

	if ack && report != nil {
		go report(driver.LinkEvent{Kind: driver.LinkDown, DeviceID: dev.ID})
	}
	return nil
}

func (f *Fake) LinkState(dev device.Device) driver.LinkState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[dev.ID]
}

// SetLinkState changes what LinkState reports for id
func (f *Fake) SetLinkState(id string, state driver.LinkState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = state
}

// Report delivers a link event through the callback captured by the last
// Connect to id; it returns false if there is none
func (f *Fake) Report(id string, kind driver.LinkEventKind) bool {
	f.mu.Lock()
	report := f.reports[id]
	f.mu.Unlock()
	if report == nil {
		return false
	}
	report(driver.LinkEvent{Kind: kind, DeviceID: id})
	return true
}

// Reporter returns the callback captured by the last Connect to id
func (f *Fake) Reporter(id string) func(driver.LinkEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports[id]
}

// Connects returns the ids passed to Connect, in order
func (f *Fake) Connects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connects...)
}

// Disconnects returns the ids passed to Disconnect, in order
func (f *Fake) Disconnects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.discons...)
}

func (f *Fake) Status(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.StatusCode, nil
}

func (f *Fake) Transmit(ctx context.Context, j *job.PrintJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, j)
	return f.TransmitErr
}

// Jobs returns every job passed to Transmit
func (f *Fake) Jobs() []*job.PrintJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*job.PrintJob(nil), f.jobs...)
}

func (f *Fake) CancelPrint() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

// Cancels returns how many times CancelPrint was called
func (f *Fake) Cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

// Forced is a Fake that also implements driver.ForcedConnector
type Forced struct {
	*Fake

	// ForceErr is returned by ForceConnect
	ForceErr error
	forced   []string
}

// NewForced creates a fake supporting forced connects
func NewForced() *Forced {
	return &Forced{Fake: New()}
}

func (f *Forced) ForceConnect(dev device.Device, report func(driver.LinkEvent)) error {
	f.mu.Lock()
	f.forced = append(f.forced, dev.ID)
	if f.ForceErr != nil {
		err := f.ForceErr
		f.mu.Unlock()
		return err
	}
	return f.startLink(dev, report)
}

// ForcedConnects returns the ids passed to ForceConnect
func (f *Forced) ForcedConnects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.forced...)
}
