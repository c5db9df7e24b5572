package printer

import (
	"errors"
	"fmt"

	"github.com/thereceipt/label-engine/internal/driver"
)

var (
	// ErrPermissionDenied is recoverable: the caller may re-request access and retry
	ErrPermissionDenied = errors.New("bluetooth permission denied")
	// ErrHardwareUnavailable means the radio is absent or disabled
	ErrHardwareUnavailable = errors.New("bluetooth hardware unavailable")
	// ErrInvalidArgument is a caller error detected locally
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDeviceNotFound means the id is neither in the scan session nor a
	// resolvable address
	ErrDeviceNotFound = fmt.Errorf("%w: device not found", ErrInvalidArgument)
	// ErrAlreadyConnected means another printer holds the connection
	ErrAlreadyConnected = fmt.Errorf("%w: already connected to another printer", ErrInvalidArgument)
	// ErrConnectionRejected means the driver refused to start connecting
	ErrConnectionRejected = errors.New("connection rejected")
	// ErrConnectionTimeout is the reason carried by a disconnected event when
	// neither the driver nor the poll loop confirmed a connect in time
	ErrConnectionTimeout = errors.New("connection timed out")
	// ErrLinkLost is the reason carried by a disconnected event when an open
	// link dropped without being asked to
	ErrLinkLost = errors.New("printer link lost")
	// ErrNotConnected means the operation requires a connected printer
	ErrNotConnected = errors.New("printer not connected")
	// ErrPrint wraps job validation and transmission failures
	ErrPrint = errors.New("print failed")
	// ErrClosed is returned once the manager has been closed
	ErrClosed = errors.New("printer manager closed")
)

// Code maps an error to a stable string code for API clients
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, ErrHardwareUnavailable):
		return "BLUETOOTH_UNAVAILABLE"
	case errors.Is(err, ErrDeviceNotFound):
		return "DEVICE_NOT_FOUND"
	case errors.Is(err, ErrAlreadyConnected):
		return "ALREADY_CONNECTED"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrConnectionRejected):
		return "CONNECTION_REJECTED"
	case errors.Is(err, ErrConnectionTimeout):
		return "CONNECTION_TIMEOUT"
	case errors.Is(err, ErrLinkLost):
		return "LINK_LOST"
	case errors.Is(err, ErrNotConnected):
		return "NOT_CONNECTED"
	case errors.Is(err, ErrPrint):
		return "PRINT_ERROR"
	case errors.Is(err, ErrClosed):
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// fromDriver translates a driver error for an operation whose generic
// failure is fallback
func fromDriver(err, fallback error) error {
	switch {
	case errors.Is(err, driver.ErrAdapterUnavailable):
		return fmt.Errorf("%w: %v", ErrHardwareUnavailable, err)
	case errors.Is(err, driver.ErrPermissionDenied):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", fallback, err)
	}
}
