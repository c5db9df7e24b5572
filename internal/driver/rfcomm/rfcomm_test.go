package rfcomm

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/driver"
	"github.com/thereceipt/label-engine/internal/printer"
)

// hungBluetoothctl puts a bluetoothctl that never answers first on PATH
func hungBluetoothctl(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	dir := t.TempDir()
	script := "#!/bin/sh\nexec sleep 3600\n"
	if err := os.WriteFile(filepath.Join(dir, "bluetoothctl"), []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write bluetoothctl: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestParseDevices(t *testing.T) {
	out := `Device 00:11:22:33:44:55 P21
Device aa:bb:cc:dd:ee:ff Office Label Printer
Device 12:34:56:78:9A:BC 12-34-56-78-9A-BC
[CHG] Controller 00:00:00:00:00:00 Discovering: yes
Device not-a-mac Broken
`

	devices := parseDevices(strings.NewReader(out))
	if len(devices) != 3 {
		t.Fatalf("Expected 3 devices, got %d", len(devices))
	}

	if devices[0].ID != "00:11:22:33:44:55" || devices[0].Name != "P21" {
		t.Errorf("Unexpected first device: %+v", devices[0])
	}
	if devices[1].ID != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Expected uppercase address, got %s", devices[1].ID)
	}
	if devices[1].Name != "Office Label Printer" {
		t.Errorf("Expected name with spaces, got %q", devices[1].Name)
	}
	if devices[2].Name != "" {
		t.Errorf("Expected address-only name to be dropped, got %q", devices[2].Name)
	}
}

func TestResolve(t *testing.T) {
	d := New(Options{})

	dev, ok := d.Resolve("aa:bb:cc:dd:ee:ff")
	if !ok {
		t.Fatal("Expected a MAC address to resolve")
	}
	if dev.ID != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Expected normalized id, got %s", dev.ID)
	}

	if _, ok := d.Resolve("printer-1"); ok {
		t.Error("Expected a non-address id not to resolve")
	}
}

func TestStartDiscovery_BluetoothctlHangs(t *testing.T) {
	hungBluetoothctl(t)
	d := New(Options{CommandTimeout: 100 * time.Millisecond})

	start := time.Now()
	err := d.StartDiscovery(func(driver.Discovery) {})
	if !errors.Is(err, driver.ErrAdapterUnavailable) {
		t.Errorf("Expected ErrAdapterUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected StartDiscovery to give up quickly, took %s", elapsed)
	}
}

func TestConnect_BluetoothctlHangs(t *testing.T) {
	hungBluetoothctl(t)
	d := New(Options{CommandTimeout: 100 * time.Millisecond})

	start := time.Now()
	err := d.Connect(device.Device{ID: "AA:BB:CC:DD:EE:FF"}, func(driver.LinkEvent) {})
	if !errors.Is(err, driver.ErrAdapterUnavailable) {
		t.Errorf("Expected ErrAdapterUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected Connect to give up quickly, took %s", elapsed)
	}
	if state := d.LinkState(device.Device{ID: "AA:BB:CC:DD:EE:FF"}); state != driver.LinkDisconnected {
		t.Errorf("Expected link disconnected, got %v", state)
	}
}

func TestStopDiscovery_DoesNotWait(t *testing.T) {
	hungBluetoothctl(t)
	d := New(Options{CommandTimeout: time.Second})

	d.mu.Lock()
	d.scanCancel = func() {}
	d.mu.Unlock()

	start := time.Now()
	if err := d.StopDiscovery(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected StopDiscovery to return at once, took %s", elapsed)
	}
}

func TestManager_StaysResponsiveWhenBluetoothctlHangs(t *testing.T) {
	hungBluetoothctl(t)
	m := printer.NewManager(New(Options{CommandTimeout: 100 * time.Millisecond}), printer.Options{})
	defer m.Close()

	if err := m.StartScan(); !errors.Is(err, printer.ErrHardwareUnavailable) {
		t.Errorf("Expected ErrHardwareUnavailable, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.Devices()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the manager to keep serving calls")
	}
}
