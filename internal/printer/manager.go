// Package printer owns discovery, the connection lifecycle and print
// submission for a single printer driver
package printer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/driver"
	"github.com/thereceipt/label-engine/internal/job"
	"github.com/thereceipt/label-engine/internal/registry"
)

const (
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultPollTimeout     = 10 * time.Second
	DefaultDisconnectGrace = 500 * time.Millisecond
)

// Options configures a Manager. Zero durations fall back to the defaults,
// except LinkCheckInterval where zero disables the link monitor.
type Options struct {
	PollInterval      time.Duration
	PollTimeout       time.Duration
	DisconnectGrace   time.Duration
	LinkCheckInterval time.Duration

	// Known, if set, remembers every printer connected to
	Known *registry.Registry
	// Builder normalizes print requests; NewBuilder() when nil
	Builder *job.Builder
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	if o.DisconnectGrace <= 0 {
		o.DisconnectGrace = DefaultDisconnectGrace
	}
	if o.Builder == nil {
		o.Builder = job.NewBuilder()
	}
	return o
}

// Manager serializes every state change onto one goroutine. Driver
// callbacks and timers post closures to its mailbox; commands post and wait.
type Manager struct {
	drv     driver.Driver
	opts    Options
	known   *registry.Registry
	history *History
	monitor *Monitor

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}

	// Owned by the run goroutine
	session  *device.Registry
	scanning bool
	scanGen  uint64
	state    State
	target   *device.Device
	attempt  uint64
	poll     *time.Timer
	elapsed  time.Duration
	grace    *time.Timer

	snap atomic.Pointer[Snapshot]

	// Transmissions never overlap
	txMu sync.Mutex

	lmu           sync.RWMutex
	onDeviceFound []func(device.Device)
	onConnection  []func(ConnectionEvent)
}

// NewManager creates a manager for drv and starts its goroutine
func NewManager(drv driver.Driver, opts Options) *Manager {
	opts = opts.withDefaults()

	m := &Manager{
		drv:     drv,
		opts:    opts,
		known:   opts.Known,
		history: NewHistory(),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		session: device.NewRegistry(),
	}
	m.snap.Store(&Snapshot{State: StateDisconnected})

	go m.run()

	if opts.LinkCheckInterval > 0 {
		m.monitor = NewMonitor(m, opts.LinkCheckInterval)
		m.monitor.Start()
	}

	log.Info().Str("driver", drv.Name()).Msg("🖨️  printer manager started")
	return m
}

// Driver returns the back-end the manager drives
func (m *Manager) Driver() driver.Driver {
	return m.drv
}

// History returns the print history
func (m *Manager) History() *History {
	return m.history
}

// Known returns the known-printer registry, which may be nil
func (m *Manager) Known() *registry.Registry {
	return m.known
}

// post queues fn for the run goroutine. It never blocks and reports false
// once the manager is closed.
func (m *Manager) post(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, fn)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// do runs fn on the run goroutine and waits for it
func (m *Manager) do(fn func()) error {
	done := make(chan struct{})
	if !m.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	<-done
	return nil
}

func (m *Manager) next() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	fn := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return fn
}

func (m *Manager) drain() {
	for fn := m.next(); fn != nil; fn = m.next() {
		fn()
	}
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case <-m.wake:
			m.drain()
		case <-m.quit:
			m.drain()
			return
		}
	}
}

// State returns the current connection snapshot without waiting on the
// manager goroutine
func (m *Manager) State() Snapshot {
	return *m.snap.Load()
}

func (m *Manager) setState(s State, reason error) {
	m.state = s

	var dev *device.Device
	if m.target != nil {
		d := *m.target
		dev = &d
	}
	if s == StateDisconnected {
		m.snap.Store(&Snapshot{State: s})
	} else {
		m.snap.Store(&Snapshot{State: s, Device: dev})
	}

	ev := log.Info().Str("state", s.String())
	if dev != nil {
		ev = ev.Str("device", dev.ID)
	}
	if reason != nil {
		ev = ev.AnErr("reason", reason)
	}
	ev.Msg("🔌 connection state changed")

	m.emitConnection(ConnectionEvent{State: s, Device: dev, Reason: reason})
}

// Close stops scanning, cancels timers and closes any open link. Cleanup
// failures are logged, not returned.
func (m *Manager) Close() error {
	if m.monitor != nil {
		m.monitor.Stop()
	}

	if err := m.do(m.shutdown); err != nil {
		return nil
	}

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	close(m.quit)
	<-m.done

	if c, ok := m.drv.(driver.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("driver close failed")
		}
	}

	log.Info().Msg("printer manager stopped")
	return nil
}

func (m *Manager) shutdown() {
	m.stopScan()
	m.stopPoll()
	m.stopGrace()

	if m.state != StateDisconnected && m.target != nil {
		if err := m.drv.Disconnect(*m.target); err != nil {
			log.Warn().Err(err).Str("device", m.target.ID).Msg("disconnect during shutdown failed")
		}
		m.attempt++
		m.setState(StateDisconnected, nil)
		m.target = nil
	}
}
