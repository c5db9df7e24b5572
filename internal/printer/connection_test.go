package printer

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/driver"
	"github.com/thereceipt/label-engine/internal/driver/drivertest"
	"github.com/thereceipt/label-engine/internal/registry"
)

// discovered starts a scan and surfaces one device
func discovered(t *testing.T, m *Manager, fake *drivertest.Fake, id string) {
	t.Helper()
	if err := m.StartScan(); err != nil {
		t.Fatalf("Failed to start scan: %v", err)
	}
	fake.Discover(driver.Discovery{ID: id, Name: "Printer " + id})
	flush(m)
}

func TestConnect_EmptyID(t *testing.T) {
	m, rec := newTestManager(t, drivertest.New(), fastOptions())

	if err := m.Connect("", false); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
	flush(m)
	if len(rec.states()) != 0 {
		t.Errorf("Expected no events, got %v", rec.states())
	}
}

func TestConnect_DeviceNotFound(t *testing.T) {
	fake := drivertest.New()
	m, rec := newTestManager(t, fake, fastOptions())

	err := m.Connect("11:22", false)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Error("Expected ErrDeviceNotFound to be an invalid argument")
	}
	if len(fake.Connects()) != 0 {
		t.Error("Expected no driver connect")
	}
	flush(m)
	if len(rec.states()) != 0 {
		t.Errorf("Expected no events, got %v", rec.states())
	}
}

func TestConnect_RawAddress(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	fake.AddKnown(device.Device{ID: "11:22"})
	m, rec := newTestManager(t, fake, fastOptions())

	if err := m.Connect("11:22", false); err != nil {
		t.Fatalf("Expected raw address to connect, got %v", err)
	}
	rec.waitFor(t, StateConnected)

	if snap := m.State(); snap.Device == nil || snap.Device.ID != "11:22" {
		t.Errorf("Expected target 11:22, got %+v", snap.Device)
	}
}

func TestConnect_RawAddressBorrowsKnownName(t *testing.T) {
	known, err := registry.New(filepath.Join(t.TempDir(), "known_printers.json"))
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	known.Remember("11:22", "B21", "fake")
	known.SetAlias("11:22", "Shipping")

	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	fake.AddKnown(device.Device{ID: "11:22"})

	opts := fastOptions()
	opts.Known = known
	m, rec := newTestManager(t, fake, opts)

	m.Connect("11:22", false)
	ev := rec.waitFor(t, StateConnected)

	if ev.Device == nil || ev.Device.Name != "Shipping" {
		t.Errorf("Expected remembered name Shipping, got %+v", ev.Device)
	}
}

func TestConnect_RemembersPrinter(t *testing.T) {
	known, _ := registry.New(filepath.Join(t.TempDir(), "known_printers.json"))

	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	opts := fastOptions()
	opts.Known = known
	m, rec := newTestManager(t, fake, opts)

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)
	rec.waitFor(t, StateConnected)
	flush(m)

	entry := known.Get("AA:BB")
	if entry == nil {
		t.Fatal("Expected printer to be remembered")
	}
	if entry.Name != "Printer AA:BB" || entry.Transport != "fake" {
		t.Errorf("Unexpected entry: %+v", entry)
	}
}

func TestConnect_StopsScan(t *testing.T) {
	fake := drivertest.New()
	m, _ := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)

	if fake.Scanning() {
		t.Error("Expected connect to stop the scan")
	}
}

func TestConnect_CallbackConfirms(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	if err := m.Connect("AA:BB", false); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	rec.waitFor(t, StateConnected)

	// The poll loop also sees the link up; it must not emit again
	time.Sleep(30 * time.Millisecond)
	flush(m)
	expectStates(t, rec.states(), StateConnecting, StateConnected)
}

func TestConnect_PollConfirms(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByState
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)
	rec.waitFor(t, StateConnected)

	// A late driver callback is ignored
	fake.Report("AA:BB", driver.LinkUp)
	time.Sleep(20 * time.Millisecond)
	flush(m)
	expectStates(t, rec.states(), StateConnecting, StateConnected)
}

func TestConnect_Timeout(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.Hang
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	start := time.Now()
	m.Connect("AA:BB", false)

	ev := rec.waitFor(t, StateDisconnected)
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected timeout after the poll window, got %v", elapsed)
	}
	if !errors.Is(ev.Reason, ErrConnectionTimeout) {
		t.Errorf("Expected ErrConnectionTimeout reason, got %v", ev.Reason)
	}

	time.Sleep(100 * time.Millisecond)
	flush(m)
	expectStates(t, rec.states(), StateConnecting, StateDisconnected)
	if m.State().State != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", m.State().State)
	}
	if m.State().Device != nil {
		t.Error("Expected no target once disconnected")
	}
}

func TestConnect_TimeoutThenLateCallback(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.Hang
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)
	rec.waitFor(t, StateDisconnected)

	fake.Report("AA:BB", driver.LinkUp)
	fake.Report("AA:BB", driver.LinkFailed)
	flush(m)

	if rec.count(StateDisconnected) != 1 || rec.count(StateConnected) != 0 {
		t.Errorf("Expected exactly one disconnected and no connected, got %v", rec.states())
	}
}

func TestConnect_DriverReportsFailure(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.FailByCallback
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)

	ev := rec.waitFor(t, StateDisconnected)
	if !errors.Is(ev.Reason, ErrConnectionRejected) {
		t.Errorf("Expected ErrConnectionRejected reason, got %v", ev.Reason)
	}

	time.Sleep(30 * time.Millisecond)
	flush(m)
	expectStates(t, rec.states(), StateConnecting, StateDisconnected)
}

func TestConnect_PollObservesDisconnected(t *testing.T) {
	fake := drivertest.New()
	opts := fastOptions()
	opts.PollTimeout = 5 * time.Second
	m, rec := newTestManager(t, fake, opts)

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)
	fake.SetLinkState("AA:BB", driver.LinkDisconnected)

	start := time.Now()
	rec.waitFor(t, StateDisconnected)
	if time.Since(start) > time.Second {
		t.Error("Expected an observed disconnect to fail the attempt before the timeout")
	}
}

func TestConnect_Rejected(t *testing.T) {
	fake := drivertest.New()
	fake.ConnectErr = driver.ErrRejected
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	err := m.Connect("AA:BB", false)
	if !errors.Is(err, ErrConnectionRejected) {
		t.Errorf("Expected ErrConnectionRejected, got %v", err)
	}

	flush(m)
	expectStates(t, rec.states(), StateConnecting, StateDisconnected)
}

func TestConnect_BypassUsesForcedConnect(t *testing.T) {
	fake := drivertest.NewForced()
	fake.ConnectErr = driver.ErrRejected
	fake.Behavior = drivertest.ConfirmByCallback
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake.Fake, "AA:BB")

	if err := m.Connect("AA:BB", true); err != nil {
		t.Fatalf("Expected forced connect to succeed, got %v", err)
	}
	rec.waitFor(t, StateConnected)

	if got := fake.ForcedConnects(); len(got) != 1 || got[0] != "AA:BB" {
		t.Errorf("Expected one forced connect to AA:BB, got %v", got)
	}
}

func TestConnect_NoBypassWithoutFlag(t *testing.T) {
	fake := drivertest.NewForced()
	fake.ConnectErr = driver.ErrRejected
	m, _ := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake.Fake, "AA:BB")

	if err := m.Connect("AA:BB", false); !errors.Is(err, ErrConnectionRejected) {
		t.Errorf("Expected ErrConnectionRejected, got %v", err)
	}
	if len(fake.ForcedConnects()) != 0 {
		t.Error("Expected no forced connect without bypass")
	}
}

func TestConnect_BypassUnsupported(t *testing.T) {
	fake := drivertest.New()
	fake.ConnectErr = driver.ErrRejected
	m, _ := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")

	if err := m.Connect("AA:BB", true); !errors.Is(err, ErrConnectionRejected) {
		t.Errorf("Expected ErrConnectionRejected, got %v", err)
	}
}

func TestConnect_RestartCancelsPriorAttempt(t *testing.T) {
	fake := drivertest.New()
	opts := fastOptions()
	opts.PollTimeout = 5 * time.Second
	m, rec := newTestManager(t, fake, opts)

	m.StartScan()
	fake.Discover(driver.Discovery{ID: "AA:BB", Name: "Printer1"})
	fake.Discover(driver.Discovery{ID: "CC:DD", Name: "Printer2"})
	flush(m)

	m.Connect("AA:BB", false)
	firstReport := fake.Reporter("AA:BB")

	if err := m.Connect("CC:DD", false); err != nil {
		t.Fatalf("Failed to restart connect: %v", err)
	}

	// The first attempt succeeds late; it must not win
	firstReport(driver.LinkEvent{Kind: driver.LinkUp, DeviceID: "AA:BB"})
	fake.SetLinkState("AA:BB", driver.LinkConnected)
	time.Sleep(20 * time.Millisecond)
	flush(m)

	snap := m.State()
	if snap.State != StateConnecting {
		t.Fatalf("Expected still connecting, got %s", snap.State)
	}
	if snap.Device == nil || snap.Device.ID != "CC:DD" {
		t.Errorf("Expected target CC:DD, got %+v", snap.Device)
	}
	if got := fake.Disconnects(); len(got) != 1 || got[0] != "AA:BB" {
		t.Errorf("Expected previous target to be abandoned, got %v", got)
	}

	fake.Report("CC:DD", driver.LinkUp)
	ev := rec.waitFor(t, StateConnected)
	if ev.Device.ID != "CC:DD" {
		t.Errorf("Expected connected to CC:DD, got %s", ev.Device.ID)
	}

	flush(m)
	expectStates(t, rec.states(), StateConnecting, StateConnecting, StateConnected)
}

func TestConnect_RestartSameDeviceAbandonsPriorAttempt(t *testing.T) {
	fake := drivertest.New()
	opts := fastOptions()
	opts.PollTimeout = 5 * time.Second
	m, rec := newTestManager(t, fake, opts)
	discovered(t, m, fake, "AA:BB")

	m.Connect("AA:BB", false)
	firstReport := fake.Reporter("AA:BB")

	if err := m.Connect("AA:BB", false); err != nil {
		t.Fatalf("Failed to restart connect: %v", err)
	}
	if got := fake.Disconnects(); len(got) != 1 || got[0] != "AA:BB" {
		t.Errorf("Expected the first attempt to be abandoned, got %v", got)
	}
	if got := fake.Connects(); len(got) != 2 {
		t.Errorf("Expected 2 driver connects, got %v", got)
	}

	// The first attempt's callback is stale
	firstReport(driver.LinkEvent{Kind: driver.LinkFailed, DeviceID: "AA:BB"})
	flush(m)
	if snap := m.State(); snap.State != StateConnecting {
		t.Fatalf("Expected still connecting, got %s", snap.State)
	}

	fake.Report("AA:BB", driver.LinkUp)
	rec.waitFor(t, StateConnected)
}

func TestConnect_WhileConnected(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	m, rec := newTestManager(t, fake, fastOptions())

	m.StartScan()
	fake.Discover(driver.Discovery{ID: "AA:BB", Name: "Printer1"})
	fake.Discover(driver.Discovery{ID: "CC:DD", Name: "Printer2"})
	flush(m)

	m.Connect("AA:BB", false)
	rec.waitFor(t, StateConnected)

	if err := m.Connect("AA:BB", false); err != nil {
		t.Errorf("Expected reconnect to the same printer to be a no-op, got %v", err)
	}
	if err := m.Connect("CC:DD", false); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("Expected ErrAlreadyConnected, got %v", err)
	}

	flush(m)
	expectStates(t, rec.states(), StateConnecting, StateConnected)
}

func TestDisconnect_NotConnected(t *testing.T) {
	m, rec := newTestManager(t, drivertest.New(), fastOptions())

	if m.Disconnect() {
		t.Error("Expected false when nothing is connected")
	}
	flush(m)
	if len(rec.states()) != 0 {
		t.Errorf("Expected no events, got %v", rec.states())
	}
}

func TestDisconnect_DriverAck(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	fake.AckDisconnect = true
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)
	rec.waitFor(t, StateConnected)

	if !m.Disconnect() {
		t.Fatal("Expected disconnect to be accepted")
	}
	ev := rec.waitFor(t, StateDisconnected)
	if ev.Reason != nil {
		t.Errorf("Expected requested disconnect to carry no reason, got %v", ev.Reason)
	}

	// Grace timer fires after the ack; nothing more may be emitted
	time.Sleep(40 * time.Millisecond)
	flush(m)
	expectStates(t, rec.states(), StateConnecting, StateConnected, StateDisconnecting, StateDisconnected)
}

func TestDisconnect_GraceTimeout(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)
	rec.waitFor(t, StateConnected)

	m.Disconnect()
	if m.State().State != StateDisconnecting {
		t.Errorf("Expected disconnecting, got %s", m.State().State)
	}
	rec.waitFor(t, StateDisconnected)

	if m.Disconnect() {
		t.Error("Expected second disconnect to report false")
	}
}

func TestLinkLoss(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)
	rec.waitFor(t, StateConnected)

	fake.Report("AA:BB", driver.LinkDown)
	ev := rec.waitFor(t, StateDisconnected)
	if !errors.Is(ev.Reason, ErrLinkLost) {
		t.Errorf("Expected ErrLinkLost reason, got %v", ev.Reason)
	}

	fake.Report("AA:BB", driver.LinkDown)
	flush(m)
	if rec.count(StateDisconnected) != 1 {
		t.Errorf("Expected one disconnected event, got %v", rec.states())
	}
}

func TestMonitor_DetectsSilentDrop(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	opts := fastOptions()
	opts.LinkCheckInterval = 10 * time.Millisecond
	m, rec := newTestManager(t, fake, opts)

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)
	rec.waitFor(t, StateConnected)

	fake.SetLinkState("AA:BB", driver.LinkDisconnected)
	ev := rec.waitFor(t, StateDisconnected)
	if !errors.Is(ev.Reason, ErrLinkLost) {
		t.Errorf("Expected ErrLinkLost reason, got %v", ev.Reason)
	}
}

func TestConnect_StateSequenceIsPrefix(t *testing.T) {
	behaviors := []drivertest.ConnectBehavior{
		drivertest.ConfirmByCallback,
		drivertest.ConfirmByState,
		drivertest.FailByCallback,
		drivertest.Hang,
	}

	for _, b := range behaviors {
		fake := drivertest.New()
		fake.Behavior = b
		m, rec := newTestManager(t, fake, fastOptions())

		discovered(t, m, fake, "AA:BB")
		m.Connect("AA:BB", false)
		time.Sleep(120 * time.Millisecond)
		flush(m)

		states := rec.states()
		if len(states) != 2 || states[0] != StateConnecting ||
			(states[1] != StateConnected && states[1] != StateDisconnected) {
			t.Errorf("behavior %d: unexpected sequence %v", b, states)
		}
	}
}
