package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thereceipt/label-engine/internal/driver"
)

func TestChunks(t *testing.T) {
	buf := make([]byte, 300)

	chunks := Chunks(buf, 128)
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[2]) != 44 {
		t.Errorf("Expected last chunk of 44 bytes, got %d", len(chunks[2]))
	}

	if got := Chunks(nil, 128); len(got) != 0 {
		t.Errorf("Expected no chunks for empty input, got %d", len(got))
	}
}

func TestClassify(t *testing.T) {
	err := classify(errors.New("org.bluez.Error.NotReady: Resource Not Ready"))
	if !errors.Is(err, driver.ErrAdapterUnavailable) {
		t.Errorf("Expected ErrAdapterUnavailable, got %v", err)
	}

	err = classify(errors.New("org.freedesktop.DBus.Error.AccessDenied: Rejected send message"))
	if !errors.Is(err, driver.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
}

func TestGattUUID(t *testing.T) {
	if got := gattUUID(writerShort).String(); got != "0000ff02-0000-1000-8000-00805f9b34fb" {
		t.Errorf("Expected ff02 characteristic, got %s", got)
	}
}

func TestScanState_StopThenRestart(t *testing.T) {
	var s scanState

	first, ok := s.begin()
	if !ok {
		t.Fatal("Expected first scan to begin")
	}
	if _, ok := s.begin(); ok {
		t.Error("Expected second begin to be refused while scanning")
	}

	if !s.stop() {
		t.Error("Expected stop to report an active scan")
	}
	second, ok := s.begin()
	if !ok {
		t.Fatal("Expected a new scan to begin after stop")
	}

	// The stopped scan returns after its replacement started
	s.exited(first)
	if !s.active {
		t.Error("Expected the replacement scan to stay active")
	}

	s.exited(second)
	if s.active {
		t.Error("Expected scan to be inactive once it exits")
	}
}

func TestReplyBox(t *testing.T) {
	var r replyBox

	if r.deliver([]byte{0x01}) {
		t.Error("Expected delivery without a waiter to be dropped")
	}

	ch := r.expect()
	if !r.deliver([]byte{0x04, 0xff}) {
		t.Fatal("Expected delivery to the waiter")
	}
	code, err := awaitStatus(context.Background(), ch)
	if err != nil {
		t.Fatalf("Expected status, got %v", err)
	}
	if code != 0x04 {
		t.Errorf("Expected status 4, got %d", code)
	}

	if r.deliver([]byte{0x02}) {
		t.Error("Expected a waiter to receive only one reply")
	}

	ch = r.expect()
	r.release(ch)
	if r.deliver([]byte{0x02}) {
		t.Error("Expected released waiter to receive nothing")
	}
}

func TestAwaitStatus_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := awaitStatus(ctx, make(chan []byte))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestStatus_NotConnected(t *testing.T) {
	d := New(Options{})
	if _, err := d.Status(context.Background()); !errors.Is(err, driver.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}
