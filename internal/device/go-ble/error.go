package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blemon/internal/device"
)

// NormalizeError maps known go-ble error strings to structured device errors.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "operation not permitted"), containsIgnoreCase(msg, "permission denied"):
		return fmt.Errorf("%w: %v", device.ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", device.ErrNotInitialized, err)
	default:
		return err
	}
}

// NormalizeScanError classifies a failed scan into a device.ScanError.
// Context cancellation is the normal way a scan ends and yields nil.
func NormalizeScanError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if _, ok := device.AsScanError(err); ok {
		return err
	}

	normalized := NormalizeError(err)
	msg := err.Error()
	code := device.ScanErrInternal
	switch {
	case errors.Is(normalized, device.ErrBluetoothOff):
		code = device.ScanErrBluetoothOff
	case errors.Is(normalized, device.ErrPermissionDenied):
		code = device.ScanErrPermissionDenied
	case containsIgnoreCase(msg, "too frequent"), containsIgnoreCase(msg, "command disallowed"),
		containsIgnoreCase(msg, "resource busy"):
		code = device.ScanErrRateLimited
	case containsIgnoreCase(msg, "already scanning"), containsIgnoreCase(msg, "already in progress"):
		code = device.ScanErrAlreadyStarted
	case containsIgnoreCase(msg, "not supported"), errors.Is(normalized, device.ErrUnsupported):
		code = device.ScanErrUnsupported
	}
	return &device.ScanError{Code: code, Err: normalized}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
