// Package rfcomm drives classic Bluetooth label printers through BlueZ's
// bluetoothctl and rfcomm tools and a serial port on /dev/rfcommN.
package rfcomm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tarm/serial"
	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/driver"
	"github.com/thereceipt/label-engine/internal/job"
	"github.com/thereceipt/label-engine/internal/render"
	"github.com/thereceipt/label-engine/internal/tspl"
)

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// Options configures the RFCOMM back-end
type Options struct {
	Channel      int
	Baud         int
	ReadTimeout  time.Duration
	ReadyTimeout time.Duration
	// ListInterval is how often discovery polls bluetoothctl for devices
	ListInterval time.Duration
	// CommandTimeout bounds every bluetoothctl and rfcomm invocation
	CommandTimeout time.Duration
	Renderer       *render.Renderer
}

func (o Options) withDefaults() Options {
	if o.Channel <= 0 {
		o.Channel = 1
	}
	if o.Baud <= 0 {
		o.Baud = 115200
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 2 * time.Second
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 15 * time.Second
	}
	if o.ListInterval <= 0 {
		o.ListInterval = 2 * time.Second
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 3 * time.Second
	}
	if o.Renderer == nil {
		o.Renderer = render.New(job.DotsPerMM)
	}
	return o
}

// Driver is a driver.Driver and driver.ForcedConnector over BlueZ RFCOMM
type Driver struct {
	opts Options

	mu         sync.Mutex
	scanCancel context.CancelFunc

	target  string
	gen     uint64
	state   driver.LinkState
	link    *link
	pending context.CancelFunc // aborts an attempt still binding
	report  func(driver.LinkEvent)
	writeMu sync.Mutex

	abort atomic.Bool
}

// link is one bound /dev/rfcommN and its open port
type link struct {
	path    string
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	port    *serial.Port
	timeout time.Duration
}

// waitDelay caps how long a killed tool may hold its output pipes open
const waitDelay = 100 * time.Millisecond

// runBounded runs a BlueZ tool and gives up after timeout. A timeout means
// bluetoothd is not answering, which callers see as an unavailable adapter.
func runBounded(timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("%w: %s %s timed out after %s",
			driver.ErrAdapterUnavailable, name, strings.Join(args, " "), timeout)
	}
	return out, err
}

func (d *Driver) run(name string, args ...string) ([]byte, error) {
	return runBounded(d.opts.CommandTimeout, name, args...)
}

func New(opts Options) *Driver {
	return &Driver{opts: opts.withDefaults()}
}

func (d *Driver) Name() string { return "rfcomm" }

func (d *Driver) checkAdapter() error {
	if _, err := exec.LookPath("bluetoothctl"); err != nil {
		return fmt.Errorf("%w: bluetoothctl not found, install bluez", driver.ErrAdapterUnavailable)
	}

	out, err := d.run("bluetoothctl", "show")
	msg := strings.ToLower(string(out))
	switch {
	case errors.Is(err, driver.ErrAdapterUnavailable):
		return err
	case strings.Contains(msg, "not authorized") || strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %s", driver.ErrPermissionDenied, strings.TrimSpace(string(out)))
	case err != nil || strings.Contains(msg, "no default controller"):
		return fmt.Errorf("%w: no bluetooth controller", driver.ErrAdapterUnavailable)
	case strings.Contains(msg, "powered: no"):
		return fmt.Errorf("%w: adapter is powered off", driver.ErrAdapterUnavailable)
	}
	return nil
}

func (d *Driver) StartDiscovery(found func(driver.Discovery)) error {
	if err := d.checkAdapter(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.scanCancel != nil {
		d.scanCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.scanCancel = cancel
	d.mu.Unlock()

	// Keep inquiry running while we poll the device list
	scan := exec.CommandContext(ctx, "bluetoothctl", "--timeout", "3600", "scan", "on")
	scan.WaitDelay = waitDelay
	if err := scan.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: failed to start scan: %v", driver.ErrAdapterUnavailable, err)
	}
	go scan.Wait()

	go func() {
		ticker := time.NewTicker(d.opts.ListInterval)
		defer ticker.Stop()

		for {
			devices, err := d.listDevices(false)
			if err != nil {
				log.Debug().Err(err).Msg("failed to list bluetooth devices")
			}
			for _, dev := range devices {
				if ctx.Err() != nil {
					return
				}
				found(dev)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (d *Driver) StopDiscovery() error {
	d.mu.Lock()
	cancel := d.scanCancel
	d.scanCancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	// Turning inquiry off is best effort and must not hold up the caller
	go func() {
		if _, err := d.run("bluetoothctl", "scan", "off"); err != nil {
			log.Debug().Err(err).Msg("bluetoothctl scan off failed")
		}
	}()
	return nil
}

func (d *Driver) listDevices(paired bool) ([]driver.Discovery, error) {
	args := []string{"devices"}
	if paired {
		args = append(args, "Paired")
	}
	out, err := d.run("bluetoothctl", args...)
	if err != nil {
		return nil, err
	}
	return parseDevices(strings.NewReader(string(out))), nil
}

// parseDevices reads "Device XX:XX:XX:XX:XX:XX Name" lines
func parseDevices(r io.Reader) []driver.Discovery {
	var devices []driver.Discovery

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Device ") {
			continue
		}

		parts := strings.SplitN(strings.TrimPrefix(line, "Device "), " ", 2)
		if !validMAC(parts[0]) {
			continue
		}
		dev := driver.Discovery{ID: strings.ToUpper(parts[0])}
		if len(parts) == 2 {
			dev.Name = strings.TrimSpace(parts[1])
		}
		// bluetoothctl prints the address again when there is no name
		if strings.EqualFold(strings.ReplaceAll(dev.Name, "-", ":"), dev.ID) {
			dev.Name = ""
		}
		devices = append(devices, dev)
	}
	return devices
}

func validMAC(s string) bool {
	return macPattern.MatchString(s)
}

// Resolve accepts any well-formed MAC address
func (d *Driver) Resolve(id string) (device.Device, bool) {
	if !validMAC(id) {
		return device.Device{}, false
	}
	return device.Device{ID: strings.ToUpper(id)}, true
}

// Connect binds an RFCOMM channel to a paired printer. The pairing check
// stays synchronous so a rejection can fall back to ForceConnect; it is
// bounded by CommandTimeout.
func (d *Driver) Connect(dev device.Device, report func(driver.LinkEvent)) error {
	paired, err := d.listDevices(true)
	if errors.Is(err, driver.ErrAdapterUnavailable) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", driver.ErrAdapterUnavailable, err)
	}
	for _, p := range paired {
		if p.ID == dev.ID {
			return d.start(dev, report)
		}
	}
	return fmt.Errorf("%w: %s is not paired", driver.ErrRejected, dev.ID)
}

// ForceConnect binds the channel without checking the pairing list
func (d *Driver) ForceConnect(dev device.Device, report func(driver.LinkEvent)) error {
	return d.start(dev, report)
}

func (d *Driver) start(dev device.Device, report func(driver.LinkEvent)) error {
	helper := privilegeHelper()
	if helper == "" {
		return fmt.Errorf("%w: rfcomm needs pkexec or sudo", driver.ErrPermissionDenied)
	}
	if _, err := exec.LookPath("rfcomm"); err != nil {
		return fmt.Errorf("%w: rfcomm not found, install bluez", driver.ErrAdapterUnavailable)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d.mu.Lock()
	if d.pending != nil {
		d.pending()
	}
	d.gen++
	gen := d.gen
	d.target = dev.ID
	d.state = driver.LinkConnecting
	d.pending = cancel
	d.report = report
	d.mu.Unlock()

	go d.establish(ctx, gen, dev.ID, helper, report)
	return nil
}

func (d *Driver) establish(ctx context.Context, gen uint64, mac, helper string, report func(driver.LinkEvent)) {
	l, err := d.bind(ctx, mac, helper)

	d.mu.Lock()
	if gen == d.gen && d.pending != nil {
		d.pending()
		d.pending = nil
	}
	if gen != d.gen {
		d.mu.Unlock()
		if l != nil {
			l.close()
		}
		return
	}
	if err != nil {
		d.state = driver.LinkDisconnected
		d.mu.Unlock()
		log.Warn().Err(err).Str("device", mac).Msg("rfcomm connect failed")
		report(driver.LinkEvent{Kind: driver.LinkFailed, DeviceID: mac, Err: err})
		return
	}
	d.link = l
	d.state = driver.LinkConnected
	d.mu.Unlock()

	log.Info().Str("device", mac).Str("port", l.path).Msg("rfcomm link up")
	report(driver.LinkEvent{Kind: driver.LinkUp, DeviceID: mac})

	go d.watch(gen, l)
}

func (d *Driver) bind(attempt context.Context, mac, helper string) (*link, error) {
	path, num, err := d.freeDevice()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	args := []string{"connect", fmt.Sprintf("/dev/rfcomm%d", num), mac, fmt.Sprint(d.opts.Channel)}
	var cmd *exec.Cmd
	if helper == "pkexec" {
		cmd = exec.CommandContext(ctx, "pkexec", append([]string{"rfcomm"}, args...)...)
	} else {
		cmd = exec.CommandContext(ctx, "sudo", append([]string{"-n", "rfcomm"}, args...)...)
	}
	cmd.WaitDelay = waitDelay
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start rfcomm: %w", err)
	}

	l := &link{path: path, cmd: cmd, cancel: cancel, timeout: d.opts.CommandTimeout}

	deadline := time.Now().Add(d.opts.ReadyTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			// The node appears before the channel is usable
			time.Sleep(500 * time.Millisecond)

			port, err := serial.OpenPort(&serial.Config{
				Name:        path,
				Baud:        d.opts.Baud,
				ReadTimeout: d.opts.ReadTimeout,
			})
			if err != nil {
				l.close()
				return nil, fmt.Errorf("failed to open %s: %w", path, err)
			}
			l.port = port
			return l, nil
		}

		select {
		case <-attempt.Done():
			l.close()
			return nil, attempt.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}

	l.close()
	return nil, fmt.Errorf("timeout waiting for %s to appear", path)
}

// watch reports LinkDown when the rfcomm process exits on its own
func (d *Driver) watch(gen uint64, l *link) {
	l.cmd.Wait()

	d.mu.Lock()
	if gen != d.gen || d.link != l {
		d.mu.Unlock()
		return
	}
	id, report := d.target, d.report
	d.link = nil
	d.state = driver.LinkDisconnected
	d.mu.Unlock()

	l.close()
	log.Info().Str("device", id).Msg("rfcomm link closed")
	report(driver.LinkEvent{Kind: driver.LinkDown, DeviceID: id})
}

func (d *Driver) Disconnect(dev device.Device) error {
	d.mu.Lock()
	if d.target != dev.ID {
		d.mu.Unlock()
		return nil
	}
	d.gen++
	if d.pending != nil {
		d.pending()
		d.pending = nil
	}
	l, report := d.link, d.report
	d.link = nil
	d.state = driver.LinkDisconnected
	d.mu.Unlock()

	if l == nil {
		return nil
	}

	go func() {
		l.close()
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
	if d.state == driver.LinkConnected && d.link != nil {
		if _, err := os.Stat(d.link.path); err != nil {
			return driver.LinkDisconnected
		}
	}
	return d.state
}

// Status asks the printer for its status byte
func (d *Driver) Status(ctx context.Context) (int, error) {
	port, err := d.port()
	if err != nil {
		return -1, err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if _, err := port.Write(tspl.StatusQuery); err != nil {
		return -1, fmt.Errorf("failed to query status: %w", err)
	}
	buf := make([]byte, 1)
	n, err := port.Read(buf)
	if err != nil {
		return -1, fmt.Errorf("failed to read status: %w", err)
	}
	if n == 0 {
		return -1, errors.New("no status reply")
	}
	return int(buf[0]), nil
}

func (d *Driver) Transmit(ctx context.Context, j *job.PrintJob) error {
	program, err := tspl.Encode(j, d.opts.Renderer)
	if err != nil {
		return err
	}
	port, err := d.port()
	if err != nil {
		return err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.abort.Store(false)
	for _, buf := range program {
		if d.abort.Load() {
			return errors.New("print cancelled")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := port.Write(buf); err != nil {
			return fmt.Errorf("failed to write to printer: %w", err)
		}
	}
	return port.Flush()
}

// CancelPrint stops sending at the next label boundary
func (d *Driver) CancelPrint() error {
	d.abort.Store(true)
	return nil
}

func (d *Driver) port() (*serial.Port, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != driver.LinkConnected || d.link == nil || d.link.port == nil {
		return nil, driver.ErrNotConnected
	}
	return d.link.port, nil
}

// Close stops discovery and releases any bound channel
func (d *Driver) Close() error {
	d.StopDiscovery()

	d.mu.Lock()
	d.gen++
	if d.pending != nil {
		d.pending()
		d.pending = nil
	}
	l := d.link
	d.link = nil
	d.target = ""
	d.state = driver.LinkDisconnected
	d.mu.Unlock()

	if l != nil {
		l.close()
	}
	return nil
}

func (l *link) close() {
	if l.port != nil {
		l.port.Close()
	}
	l.cancel()

	switch privilegeHelper() {
	case "pkexec":
		runBounded(l.timeout, "pkexec", "rfcomm", "release", l.path)
	case "sudo":
		runBounded(l.timeout, "sudo", "-n", "rfcomm", "release", l.path)
	}

	if l.cmd.Process != nil {
		l.cmd.Process.Kill()
	}
}

// freeDevice finds an unbound /dev/rfcommN
func (d *Driver) freeDevice() (string, int, error) {
	for i := 0; i < 10; i++ {
		path := fmt.Sprintf("/dev/rfcomm%d", i)
		out, err := d.run("rfcomm", "show", path)
		if errors.Is(err, driver.ErrAdapterUnavailable) {
			return "", -1, err
		}
		if len(out) == 0 || strings.Contains(string(out), "No such device") {
			return path, i, nil
		}
	}
	return "", -1, errors.New("no free rfcomm device")
}

func privilegeHelper() string {
	if _, err := exec.LookPath("pkexec"); err == nil {
		return "pkexec"
	}
	if _, err := exec.LookPath("sudo"); err == nil {
		return "sudo"
	}
	return ""
}
