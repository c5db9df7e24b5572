package printer

import (
	"context"
	"errors"
	"testing"

	"github.com/thereceipt/label-engine/internal/driver"
	"github.com/thereceipt/label-engine/internal/driver/drivertest"
	"github.com/thereceipt/label-engine/internal/job"
	"github.com/thereceipt/label-engine/pkg/labelformat"
)

func helloJob() *labelformat.Job {
	return &labelformat.Job{
		Pages: []labelformat.Page{
			{Items: []labelformat.Item{{Format: "TEXT", Content: "Hello"}}},
		},
	}
}

// connected returns a manager connected to AA:BB through a confirming fake
func connected(t *testing.T) (*Manager, *drivertest.Fake) {
	t.Helper()

	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	if err := m.Connect("AA:BB", false); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	rec.waitFor(t, StateConnected)
	return m, fake
}

func TestPrint_NotConnected(t *testing.T) {
	fake := drivertest.New()
	m, _ := newTestManager(t, fake, fastOptions())

	_, err := m.Print(context.Background(), helloJob())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if len(fake.Jobs()) != 0 {
		t.Errorf("Expected no transmission, got %d", len(fake.Jobs()))
	}
}

func TestPrint_WhileConnecting(t *testing.T) {
	fake := drivertest.New()
	m, _ := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)

	if _, err := m.Print(context.Background(), helloJob()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected while connecting, got %v", err)
	}
}

func TestPrint_ZeroPagesRejected(t *testing.T) {
	m, fake := connected(t)

	_, err := m.Print(context.Background(), &labelformat.Job{})
	if !errors.Is(err, ErrPrint) {
		t.Errorf("Expected ErrPrint, got %v", err)
	}
	if !errors.Is(err, job.ErrNoPages) {
		t.Errorf("Expected cause ErrNoPages, got %v", err)
	}
	if len(fake.Jobs()) != 0 {
		t.Error("Expected no transmission for an empty job")
	}
}

func TestPrint_BadImageRejected(t *testing.T) {
	m, fake := connected(t)

	spec := &labelformat.Job{
		Pages: []labelformat.Page{
			{Items: []labelformat.Item{{Format: "IMAGE", ImageBytes: []byte{0xde, 0xad}}}},
		},
	}

	id, err := m.Print(context.Background(), spec)
	if !errors.Is(err, ErrPrint) {
		t.Errorf("Expected ErrPrint, got %v", err)
	}
	var itemErr *job.ItemError
	if !errors.As(err, &itemErr) {
		t.Errorf("Expected *job.ItemError in chain, got %v", err)
	}
	if len(fake.Jobs()) != 0 {
		t.Error("Expected no transmission for an invalid job")
	}

	entry := m.History().Get(id)
	if entry == nil || entry.Status != JobFailed {
		t.Errorf("Expected failed history entry, got %+v", entry)
	}
}

func TestPrint_TransmitError(t *testing.T) {
	m, fake := connected(t)
	fake.TransmitErr = driver.ErrNotConnected

	id, err := m.Print(context.Background(), helloJob())
	if !errors.Is(err, ErrPrint) {
		t.Errorf("Expected ErrPrint, got %v", err)
	}
	if !errors.Is(err, driver.ErrNotConnected) {
		t.Errorf("Expected driver cause to be kept, got %v", err)
	}
	if len(fake.Jobs()) != 1 {
		t.Errorf("Expected exactly one transmission with no retry, got %d", len(fake.Jobs()))
	}

	if entry := m.History().Get(id); entry == nil || entry.Status != JobFailed || entry.Error == "" {
		t.Errorf("Expected failed history entry with error, got %+v", entry)
	}
}

func TestPrint_Transmits(t *testing.T) {
	m, fake := connected(t)

	spec := helloJob()
	spec.Rotate = labelformat.Int(2)
	spec.Copies = labelformat.Int(3)

	id, err := m.Print(context.Background(), spec)
	if err != nil {
		t.Fatalf("Failed to print: %v", err)
	}

	jobs := fake.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 transmission, got %d", len(jobs))
	}
	if jobs[0].VendorRotation != 3 {
		t.Errorf("Expected vendor rotation 3, got %d", jobs[0].VendorRotation)
	}
	if jobs[0].Copies != 3 {
		t.Errorf("Expected 3 copies, got %d", jobs[0].Copies)
	}

	entry := m.History().Get(id)
	if entry == nil {
		t.Fatal("Expected history entry")
	}
	if entry.Status != JobCompleted || entry.DeviceID != "AA:BB" || entry.Labels != 3 {
		t.Errorf("Unexpected history entry: %+v", entry)
	}
}

func TestStatus(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	fake.StatusCode = 0
	m, rec := newTestManager(t, fake, fastOptions())

	if _, err := m.Status(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)
	rec.waitFor(t, StateConnected)

	code, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if code != 0 {
		t.Errorf("Expected status 0, got %d", code)
	}
}

func TestCancelPrint(t *testing.T) {
	fake := drivertest.New()
	m, _ := newTestManager(t, fake, fastOptions())

	if err := m.CancelPrint(); err != nil {
		t.Errorf("Expected best-effort cancel to succeed, got %v", err)
	}
	if fake.Cancels() != 1 {
		t.Errorf("Expected driver cancel to be called once, got %d", fake.Cancels())
	}
}

func TestEndToEnd_ScanConnectPrint(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	m, rec := newTestManager(t, fake, fastOptions())

	if err := m.StartScan(); err != nil {
		t.Fatalf("Failed to start scan: %v", err)
	}
	fake.Discover(driver.Discovery{ID: "AA:BB", Name: "Printer1"})
	flush(m)

	found := rec.found()
	if len(found) != 1 || found[0].ID != "AA:BB" || found[0].Name != "Printer1" {
		t.Fatalf("Expected scan event {AA:BB Printer1}, got %+v", found)
	}

	if err := m.Connect("AA:BB", false); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	rec.waitFor(t, StateConnected)
	expectStates(t, rec.states(), StateConnecting, StateConnected)

	if _, err := m.Print(context.Background(), helloJob()); err != nil {
		t.Errorf("Expected print to succeed, got %v", err)
	}
	if len(fake.Jobs()) != 1 {
		t.Errorf("Expected one transmission, got %d", len(fake.Jobs()))
	}
}

func TestEndToEnd_HandshakeNeverCompletes(t *testing.T) {
	fake := drivertest.New()
	fake.Behavior = drivertest.Hang
	m, rec := newTestManager(t, fake, fastOptions())

	discovered(t, m, fake, "AA:BB")
	m.Connect("AA:BB", false)
	rec.waitFor(t, StateDisconnected)

	if m.State().State != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", m.State().State)
	}
	if rec.count(StateDisconnected) != 1 {
		t.Errorf("Expected exactly one disconnected event, got %v", rec.states())
	}
}
