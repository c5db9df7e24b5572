package device

import (
	"testing"
)

func TestRegistry_Dedup(t *testing.T) {
	reg := NewRegistry()

	events := []Device{
		{ID: "AA:BB", Name: "Printer1"},
		{ID: "CC:DD", Name: "Printer2"},
		{ID: "AA:BB", Name: "Printer1"},
		{ID: "AA:BB", Name: "Printer1 (renamed)"},
		{ID: "CC:DD", Name: "Printer2"},
		{ID: "EE:FF", Name: "Printer3"},
	}

	var emitted []string
	for _, ev := range events {
		if reg.Add(ev) {
			emitted = append(emitted, ev.ID)
		}
	}

	want := []string{"AA:BB", "CC:DD", "EE:FF"}
	if len(emitted) != len(want) {
		t.Fatalf("Expected %d emitted devices, got %d (%v)", len(want), len(emitted), emitted)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Errorf("Expected emitted[%d] = %s, got %s", i, want[i], emitted[i])
		}
	}

	dev, _ := reg.Get("AA:BB")
	if dev.Name != "Printer1" {
		t.Errorf("Expected first-seen name to stick, got %s", dev.Name)
	}
}

func TestRegistry_EmptyNameDiscarded(t *testing.T) {
	reg := NewRegistry()

	if reg.Add(Device{ID: "AA:BB"}) {
		t.Error("Expected device without name to be discarded")
	}
	if reg.Len() != 0 {
		t.Errorf("Expected empty session, got %d devices", reg.Len())
	}

	// A later event carrying a name is still accepted
	if !reg.Add(Device{ID: "AA:BB", Name: "Printer1"}) {
		t.Error("Expected named device to be added")
	}
}

func TestRegistry_Order(t *testing.T) {
	reg := NewRegistry()
	ids := []string{"3", "1", "2"}
	for _, id := range ids {
		reg.Add(Device{ID: id, Name: "P" + id})
	}

	all := reg.All()
	for i, dev := range all {
		if dev.ID != ids[i] {
			t.Errorf("Expected position %d to be %s, got %s", i, ids[i], dev.ID)
		}
	}
}

func TestRegistry_Clear(t *testing.T) {
	reg := NewRegistry()
	reg.Add(Device{ID: "AA:BB", Name: "Printer1"})
	reg.Clear()

	if _, ok := reg.Get("AA:BB"); ok {
		t.Error("Expected device to be gone after Clear")
	}
	if !reg.Add(Device{ID: "AA:BB", Name: "Printer1"}) {
		t.Error("Expected device to be emitted again in a new session")
	}
}
