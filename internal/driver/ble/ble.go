// Package ble drives label printers that expose a write characteristic over
// Bluetooth Low Energy
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/driver"
	"github.com/thereceipt/label-engine/internal/job"
	"github.com/thereceipt/label-engine/internal/render"
	"github.com/thereceipt/label-engine/internal/tspl"
	"tinygo.org/x/bluetooth"
)

// Printer GATT layout: service 0xFF00, write 0xFF02, notify 0xFF03
const (
	serviceShort  = 0x00
	writerShort   = 0x02
	notifierShort = 0x03
)

const (
	defaultChunkSize     = 128
	defaultChunkDelay    = 5 * time.Millisecond
	defaultStatusTimeout = 3 * time.Second
)

func gattUUID(short byte) bluetooth.UUID {
	return bluetooth.NewUUID([16]byte{
		0x00, 0x00, 0xff, short, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
	})
}

// Options configures the BLE back-end
type Options struct {
	// ChunkSize is the largest single write; it must fit the negotiated MTU
	ChunkSize int
	// ChunkDelay paces writes so the printer buffer keeps up
	ChunkDelay time.Duration
	// StatusTimeout bounds a status query when the caller sets no deadline
	StatusTimeout time.Duration
	Renderer      *render.Renderer
}

// Driver is a driver.Driver over tinygo.org/x/bluetooth
type Driver struct {
	adapter *bluetooth.Adapter
	opts    Options

	mu      sync.Mutex
	enabled bool
	scan    scanState
	found   func(driver.Discovery)

	// Addresses seen by any scan; only these can be connected to
	seen map[string]bluetooth.Address

	target    string
	gen       uint64
	state     driver.LinkState
	dev       bluetooth.Device
	hasDev    bool
	writer    bluetooth.DeviceCharacteristic
	notify    bluetooth.DeviceCharacteristic
	notifying bool
	report    func(driver.LinkEvent)

	replies replyBox
	abort   atomic.Bool

	// One adapter connect at a time; an abandoned attempt finishes and drops
	// its link before the next one starts
	connectMu sync.Mutex
}

// scanState tracks the adapter scan. Each scan has a generation so a scan
// that was stopped cannot clear the flag of the one that replaced it.
type scanState struct {
	active bool
	gen    uint64
}

// begin marks a scan active; ok is false when one already is
func (s *scanState) begin() (gen uint64, ok bool) {
	if s.active {
		return s.gen, false
	}
	s.gen++
	s.active = true
	return s.gen, true
}

// stop marks the current scan inactive
func (s *scanState) stop() (wasActive bool) {
	wasActive = s.active
	s.active = false
	return wasActive
}

// exited records that the scan with generation gen returned
func (s *scanState) exited(gen uint64) {
	if gen == s.gen {
		s.active = false
	}
}

// replyBox hands the next printer notification to one waiting query
type replyBox struct {
	mu     sync.Mutex
	waiter chan []byte
}

func (r *replyBox) expect() chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiter = make(chan []byte, 1)
	return r.waiter
}

// deliver passes buf to the waiting query, if any
func (r *replyBox) deliver(buf []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiter == nil {
		return false
	}
	r.waiter <- append([]byte(nil), buf...)
	r.waiter = nil
	return true
}

func (r *replyBox) release(ch chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiter == ch {
		r.waiter = nil
	}
}

// New creates a driver on the default adapter. The adapter is enabled lazily.
func New(opts Options) *Driver {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.ChunkDelay <= 0 {
		opts.ChunkDelay = defaultChunkDelay
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = defaultStatusTimeout
	}
	if opts.Renderer == nil {
		opts.Renderer = render.New(job.DotsPerMM)
	}

	return &Driver{
		adapter: bluetooth.DefaultAdapter,
		opts:    opts,
		seen:    make(map[string]bluetooth.Address),
	}
}

func (d *Driver) Name() string { return "ble" }

// enable must be called with d.mu held
func (d *Driver) enable() error {
	if d.enabled {
		return nil
	}
	if err := d.adapter.Enable(); err != nil {
		return classify(err)
	}

	d.adapter.SetConnectHandler(d.onConnectChange)
	d.enabled = true
	log.Debug().Msg("bluetooth adapter enabled")
	return nil
}

// classify maps an adapter error onto the driver sentinels
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "accessdenied") || strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized") {
		return fmt.Errorf("%w: %v", driver.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", driver.ErrAdapterUnavailable, err)
}

func (d *Driver) StartDiscovery(found func(driver.Discovery)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enable(); err != nil {
		return err
	}

	d.found = found
	gen, ok := d.scan.begin()
	if !ok {
		return nil
	}

	go func() {
		err := d.adapter.Scan(d.onScanResult)

		d.mu.Lock()
		d.scan.exited(gen)
		d.mu.Unlock()

		if err != nil {
			log.Error().Err(err).Msg("bluetooth scan ended")
		}
	}()
	return nil
}

func (d *Driver) onScanResult(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
	id := result.Address.String()
	rssi := int(result.RSSI)

	d.mu.Lock()
	d.seen[id] = result.Address
	found := d.found
	d.mu.Unlock()

	if found != nil {
		found(driver.Discovery{ID: id, Name: result.LocalName(), RSSI: &rssi})
	}
}

func (d *Driver) StopDiscovery() error {
	d.mu.Lock()
	scanning := d.scan.stop()
	d.found = nil
	d.mu.Unlock()

	if !scanning {
		return nil
	}
	return d.adapter.StopScan()
}

// Resolve accepts any address the adapter has seen since the process started
func (d *Driver) Resolve(id string) (device.Device, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for seenID := range d.seen {
		if strings.EqualFold(seenID, id) {
			return device.Device{ID: seenID}, true
		}
	}
	return device.Device{}, false
}

func (d *Driver) Connect(dev device.Device, report func(driver.LinkEvent)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enable(); err != nil {
		return err
	}

	addr, ok := d.seen[dev.ID]
	if !ok {
		return fmt.Errorf("%w: %s has not been seen by the adapter", driver.ErrRejected, dev.ID)
	}

	d.gen++
	gen := d.gen
	d.target = dev.ID
	d.state = driver.LinkConnecting
	d.hasDev = false
	d.notifying = false
	d.report = report

	go d.establish(gen, dev.ID, addr, report)
	return nil
}

// establish connects and discovers the write characteristic off the
// caller's goroutine
func (d *Driver) establish(gen uint64, id string, addr bluetooth.Address, report func(driver.LinkEvent)) {
	d.connectMu.Lock()
	defer d.connectMu.Unlock()

	if !d.current(gen) {
		return
	}
	log.Debug().Str("device", id).Msg("connecting over ble")

	dev, err := d.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err == nil {
		err = d.discover(gen, dev)
		if err != nil {
			dev.Disconnect()
		}
	}

	d.mu.Lock()
	if gen != d.gen {
		// Abandoned while connecting
		d.mu.Unlock()
		if err == nil {
			dev.Disconnect()
		}
		return
	}
	if err != nil {
		d.state = driver.LinkDisconnected
		d.mu.Unlock()
		log.Warn().Err(err).Str("device", id).Msg("ble connect failed")
		report(driver.LinkEvent{Kind: driver.LinkFailed, DeviceID: id, Err: err})
		return
	}
	d.dev = dev
	d.hasDev = true
	d.state = driver.LinkConnected
	d.mu.Unlock()

	report(driver.LinkEvent{Kind: driver.LinkUp, DeviceID: id})
}

func (d *Driver) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.gen
}

func (d *Driver) discover(gen uint64, dev bluetooth.Device) error {
	services, err := dev.DiscoverServices([]bluetooth.UUID{gattUUID(serviceShort)})
	if err != nil {
		return fmt.Errorf("failed to discover service: %w", err)
	}
	if len(services) == 0 {
		return errors.New("printer service not found")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{gattUUID(writerShort), gattUUID(notifierShort)})
	if err != nil {
		return fmt.Errorf("failed to discover characteristics: %w", err)
	}
	if len(chars) < 1 {
		return errors.New("write characteristic not found")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return nil
	}
	d.writer = chars[0]
	if len(chars) > 1 {
		d.notify = chars[1]
		if err := d.notify.EnableNotifications(d.onNotify); err != nil {
			log.Debug().Err(err).Msg("printer notifications unavailable")
		} else {
			d.notifying = true
		}
	}
	return nil
}

func (d *Driver) onNotify(buf []byte) {
	if !d.replies.deliver(buf) {
		log.Debug().Hex("data", buf).Msg("unsolicited printer notification")
	}
}

// onConnectChange receives adapter-level link changes, including drops
// nobody asked for
func (d *Driver) onConnectChange(dev bluetooth.Device, connected bool) {
	if connected {
		return
	}

	d.mu.Lock()
	if dev.Address.String() != d.target || d.state == driver.LinkDisconnected {
		d.mu.Unlock()
		return
	}
	id := d.target
	report := d.report
	d.state = driver.LinkDisconnected
	d.hasDev = false
	d.mu.Unlock()

	log.Info().Str("device", id).Msg("ble link closed")
	if report != nil {
		report(driver.LinkEvent{Kind: driver.LinkDown, DeviceID: id})
	}
}

func (d *Driver) Disconnect(dev device.Device) error {
	d.mu.Lock()
	if d.target != dev.ID {
		d.mu.Unlock()
		return nil
	}

	d.gen++
	report := d.report
	btDev, hasDev := d.dev, d.hasDev
	d.hasDev = false

	if !hasDev {
		// Still connecting; establish drops the link when it notices
		d.state = driver.LinkDisconnected
		d.mu.Unlock()
		return nil
	}
	d.state = driver.LinkDisconnecting
	d.mu.Unlock()

	go func() {
		d.connectMu.Lock()
		err := btDev.Disconnect()
		d.connectMu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("device", dev.ID).Msg("ble disconnect failed")
		}

		d.mu.Lock()
		if d.target == dev.ID {
			d.state = driver.LinkDisconnected
		}
		d.mu.Unlock()

		if report != nil {
			report(driver.LinkEvent{Kind: driver.LinkDown, DeviceID: dev.ID})
		}
	}()
	return nil
}

func (d *Driver) LinkState(dev device.Device) driver.LinkState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.target != dev.ID {
		return driver.LinkDisconnected
	}
	return d.state
}

// Status writes the status query and returns the first byte of the next
// notification
func (d *Driver) Status(ctx context.Context) (int, error) {
	d.mu.Lock()
	connected, notifying := d.state == driver.LinkConnected, d.notifying
	d.mu.Unlock()

	if !connected {
		return -1, driver.ErrNotConnected
	}
	if !notifying {
		return -1, fmt.Errorf("%w: printer has no status notifications", driver.ErrUnsupported)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.StatusTimeout)
		defer cancel()
	}

	reply := d.replies.expect()
	defer d.replies.release(reply)

	if err := d.write(tspl.StatusQuery); err != nil {
		return -1, fmt.Errorf("failed to query status: %w", err)
	}
	return awaitStatus(ctx, reply)
}

func awaitStatus(ctx context.Context, reply <-chan []byte) (int, error) {
	select {
	case <-ctx.Done():
		return -1, fmt.Errorf("no status reply: %w", ctx.Err())
	case buf := <-reply:
		if len(buf) == 0 {
			return -1, errors.New("empty status reply")
		}
		return int(buf[0]), nil
	}
}

func (d *Driver) Transmit(ctx context.Context, j *job.PrintJob) error {
	program, err := tspl.Encode(j, d.opts.Renderer)
	if err != nil {
		return err
	}

	d.abort.Store(false)
	for _, buf := range program {
		for _, chunk := range Chunks(buf, d.opts.ChunkSize) {
			if d.abort.Load() {
				return errors.New("print cancelled")
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			if err := d.write(chunk); err != nil {
				return err
			}
			time.Sleep(d.opts.ChunkDelay)
		}
	}
	return nil
}

func (d *Driver) write(chunk []byte) error {
	d.mu.Lock()
	writer, ok := d.writer, d.state == driver.LinkConnected
	d.mu.Unlock()

	if !ok {
		return driver.ErrNotConnected
	}
	if _, err := writer.WriteWithoutResponse(chunk); err != nil {
		return fmt.Errorf("failed to write to printer: %w", err)
	}
	return nil
}

// CancelPrint stops sending after the current chunk
func (d *Driver) CancelPrint() error {
	d.abort.Store(true)
	return nil
}

// Close stops scanning and drops any link
func (d *Driver) Close() error {
	d.StopDiscovery()

	d.mu.Lock()
	btDev, hasDev := d.dev, d.hasDev
	d.gen++
	d.hasDev = false
	d.state = driver.LinkDisconnected
	d.target = ""
	d.mu.Unlock()

	if hasDev {
		return btDev.Disconnect()
	}
	return nil
}

// Chunks splits buf into pieces of at most size bytes
func Chunks(buf []byte, size int) [][]byte {
	var out [][]byte
	for len(buf) > size {
		out = append(out, buf[:size])
		buf = buf[size:]
	}
	if len(buf) > 0 {
		out = append(out, buf)
	}
	return out
}
