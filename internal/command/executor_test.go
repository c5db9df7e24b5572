package command

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/driver"
	"github.com/thereceipt/label-engine/internal/driver/drivertest"
	"github.com/thereceipt/label-engine/internal/printer"
	"github.com/thereceipt/label-engine/internal/registry"
)

func newExecutor(t *testing.T) (*Executor, *printer.Manager, *drivertest.Fake) {
	t.Helper()

	known, err := registry.New(filepath.Join(t.TempDir(), "known_printers.json"))
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	fake := drivertest.New()
	fake.Behavior = drivertest.ConfirmByCallback
	m := printer.NewManager(fake, printer.Options{
		PollInterval:    5 * time.Millisecond,
		PollTimeout:     50 * time.Millisecond,
		DisconnectGrace: 20 * time.Millisecond,
		Known:           known,
	})
	t.Cleanup(func() { m.Close() })

	return NewExecutor(m), m, fake
}

func waitState(t *testing.T, m *printer.Manager, s printer.State) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State().State == s {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s, state is %s", s, m.State().State)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"scan", []string{"scan"}},
		{"  connect   AA:BB  --bypass ", []string{"connect", "AA:BB", "--bypass"}},
		{`name AA:BB "Shipping Desk"`, []string{"name", "AA:BB", "Shipping Desk"}},
		{`name AA:BB 'it"s'`, []string{"name", "AA:BB", `it"s`}},
	}

	for _, tt := range tests {
		got := parseCommand(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("parseCommand(%q): expected %v, got %v", tt.in, tt.want, got)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseCommand(%q)[%d]: expected %q, got %q", tt.in, i, tt.want[i], got[i])
			}
		}
	}
}

func TestExecute_Unknown(t *testing.T) {
	e, _, _ := newExecutor(t)

	res := e.Execute("frobnicate")
	if res.Success {
		t.Error("Expected unknown command to fail")
	}

	res = e.Execute("   ")
	if res.Success {
		t.Error("Expected empty command to fail")
	}
}

func TestExecute_ScanAndDevices(t *testing.T) {
	e, m, fake := newExecutor(t)

	if res := e.Execute("scan"); !res.Success {
		t.Fatalf("Expected scan to succeed, got %s", res.Error)
	}
	fake.Discover(driver.Discovery{ID: "AA:BB", Name: "P21"})
	fake.Discover(driver.Discovery{ID: "AA:BB", Name: "P21"})

	deadline := time.Now().Add(time.Second)
	for len(m.Devices()) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	res := e.Execute("devices")
	devices := res.Data["devices"].([]map[string]interface{})
	if len(devices) != 1 {
		t.Fatalf("Expected 1 device, got %d", len(devices))
	}
	if devices[0]["id"] != "AA:BB" {
		t.Errorf("Expected AA:BB, got %v", devices[0]["id"])
	}

	if res := e.Execute("stop"); !res.Success {
		t.Errorf("Expected stop to succeed, got %s", res.Error)
	}
}

func TestExecute_ConnectUsage(t *testing.T) {
	e, _, _ := newExecutor(t)

	res := e.Execute("connect --bypass")
	if res.Success || res.Code != "INVALID_ARGUMENT" {
		t.Errorf("Expected usage error, got %+v", res)
	}

	res = e.Execute("connect nowhere")
	if res.Success || res.Code != "DEVICE_NOT_FOUND" {
		t.Errorf("Expected DEVICE_NOT_FOUND, got %+v", res)
	}
}

func TestExecute_ConnectPrintDisconnect(t *testing.T) {
	e, m, fake := newExecutor(t)
	fake.AddKnown(device.Device{ID: "AA:BB", Name: "P21"})

	if res := e.Execute("connect AA:BB"); !res.Success {
		t.Fatalf("Expected connect to succeed, got %s", res.Error)
	}
	waitState(t, m, printer.StateConnected)

	path := filepath.Join(t.TempDir(), "label.json")
	body := `{"pages":[{"items":[{"format":"TEXT","content":"Hello"}]}]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write job: %v", err)
	}

	res := e.Execute("print " + path)
	if !res.Success {
		t.Fatalf("Expected print to succeed, got %s", res.Error)
	}
	if len(fake.Jobs()) != 1 {
		t.Errorf("Expected 1 transmission, got %d", len(fake.Jobs()))
	}

	jobID := res.Data["job_id"].(string)
	if res := e.Execute("job " + jobID); !res.Success {
		t.Errorf("Expected job lookup to succeed, got %s", res.Error)
	}

	if res := e.Execute(`name AA:BB "Shipping Desk"`); !res.Success {
		t.Errorf("Expected name to succeed, got %s", res.Error)
	}
	if entry := m.Known().Get("AA:BB"); entry == nil || entry.DisplayName() != "Shipping Desk" {
		t.Errorf("Expected alias to be stored, got %+v", entry)
	}

	res = e.Execute("disconnect")
	if !res.Success || res.Data["result"] != true {
		t.Errorf("Expected disconnect result true, got %+v", res)
	}
	waitState(t, m, printer.StateDisconnected)
}

func TestExecute_PrintNotConnected(t *testing.T) {
	e, _, _ := newExecutor(t)

	path := filepath.Join(t.TempDir(), "label.json")
	os.WriteFile(path, []byte(`{"pages":[{}]}`), 0644)

	res := e.Execute("print " + path)
	if res.Success || res.Code != "NOT_CONNECTED" {
		t.Errorf("Expected NOT_CONNECTED, got %+v", res)
	}

	res = e.Execute("print /does/not/exist.json")
	if res.Success || res.Code != "INVALID_ARGUMENT" {
		t.Errorf("Expected INVALID_ARGUMENT for a missing file, got %+v", res)
	}
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"--var", "sku=1042", "--var", "note=a=b"})
	if err != nil {
		t.Fatalf("parseVars failed: %v", err)
	}
	if vars["sku"] != "1042" || vars["note"] != "a=b" {
		t.Errorf("Unexpected vars: %v", vars)
	}

	for _, args := range [][]string{{"--var"}, {"sku=1"}, {"--var", "=1"}, {"--var", "novalue"}} {
		if _, err := parseVars(args); err == nil {
			t.Errorf("Expected error for %v", args)
		}
	}
}
