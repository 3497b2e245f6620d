package device

import (
	"errors"
	"fmt"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parentResource := "service"
	if e.Resource == "descriptor" {
		parentResource = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parentResource, e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	ConnectFailed    ConnectionState = "connect_failed"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrConnectFailed    = &ConnectionError{State: ConnectFailed}
)

// Operation errors
var (
	ErrTimeout          = errors.New("timeout")
	ErrUnsupported      = errors.New("unsupported")
	ErrBluetoothOff     = errors.New("bluetooth is turned off")
	ErrPermissionDenied = errors.New("bluetooth permission denied")
	ErrMalformedValue   = errors.New("malformed characteristic value")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// DescriptorWriteError reports a failed Client Characteristic Configuration
// write, i.e. notifications could not be enabled for a characteristic.
type DescriptorWriteError struct {
	Service        string
	Characteristic string
	Err            error
}

func (e *DescriptorWriteError) Error() string {
	return fmt.Sprintf("failed to enable notifications for characteristic %q in service %q: %v",
		e.Characteristic, e.Service, e.Err)
}

func (e *DescriptorWriteError) Unwrap() error { return e.Err }

// ScanErrorCode classifies a platform scan failure.
type ScanErrorCode int

// ScanErrRateLimited is reported when the host refuses to start a scan because
// scans were started too frequently.
const (
	ScanErrPermissionDenied ScanErrorCode = -1
	ScanErrAlreadyStarted   ScanErrorCode = 1
	ScanErrRateLimited      ScanErrorCode = 2
	ScanErrInternal         ScanErrorCode = 3
	ScanErrUnsupported      ScanErrorCode = 4
	ScanErrBluetoothOff     ScanErrorCode = 5
)

func (c ScanErrorCode) String() string {
	switch c {
	case ScanErrPermissionDenied:
		return "permission denied"
	case ScanErrAlreadyStarted:
		return "scan already started"
	case ScanErrRateLimited:
		return "scanning blocked by the system (too frequent)"
	case ScanErrInternal:
		return "internal error"
	case ScanErrUnsupported:
		return "scanning not supported"
	case ScanErrBluetoothOff:
		return "bluetooth is turned off"
	default:
		return fmt.Sprintf("scan error %d", int(c))
	}
}

// ScanError is a platform scan failure with its classification code.
type ScanError struct {
	Code ScanErrorCode
	Err  error
}

func (e *ScanError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("scan failed (code %d): %s", int(e.Code), e.Code)
	}
	return fmt.Sprintf("scan failed (code %d): %s: %v", int(e.Code), e.Code, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// IsRateLimited reports whether the host throttled scanning.
func (e *ScanError) IsRateLimited() bool {
	return e != nil && e.Code == ScanErrRateLimited
}

// AsScanError extracts a *ScanError from err's chain.
func AsScanError(err error) (*ScanError, bool) {
	var serr *ScanError
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}
