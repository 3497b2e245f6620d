package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/scanner"
)

// rateLimitHint is printed instead of the raw error when the host throttles scanning.
const rateLimitHint = "scanning was blocked by the system because scans were started too frequently; wait ~30 seconds and try again"

// FormatUserError turns an error into a single line for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	if serr, ok := device.AsScanError(err); ok {
		switch serr.Code {
		case device.ScanErrRateLimited:
			return rateLimitHint
		case device.ScanErrBluetoothOff:
			return "Bluetooth is turned off; enable it and try again"
		case device.ScanErrPermissionDenied:
			return "permission to use Bluetooth was denied"
		}
	}

	var nf *device.NotFoundError
	var dw *device.DescriptorWriteError
	switch {
	case errors.Is(err, scanner.ErrScanInProgress):
		return "a scan is already running"
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, device.ErrPermissionDenied):
		return "permission to use Bluetooth was denied"
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out: %v", err)
	case errors.As(err, &nf):
		return fmt.Sprintf("the device does not expose the requested %s (%v)", nf.Resource, err)
	case errors.As(err, &dw):
		return fmt.Sprintf("could not enable notifications for %s/%s: %v", dw.Service, dw.Characteristic, dw.Err)
	case device.IsConnectionState(err, device.NotConnected):
		return fmt.Sprintf("connection lost (%v)", err)
	}
	return err.Error()
}
