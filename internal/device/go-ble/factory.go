package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// Host is the part of ble.Device blemon drives: scanning and dialing.
type Host interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, address string) (GATTClient, error)
	Stop() error
}

// GATTClient is the part of ble.Client used by one monitoring session.
type GATTClient interface {
	Addr() ble.Addr
	DiscoverProfile(force bool) (*ble.Profile, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	ReadRSSI() int
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// hostAdapter narrows a ble.Device to Host
type hostAdapter struct {
	dev ble.Device
}

func (h *hostAdapter) Scan(ctx context.Context, allowDup bool, handler ble.AdvHandler) error {
	return h.dev.Scan(ctx, allowDup, handler)
}

func (h *hostAdapter) Dial(ctx context.Context, address string) (GATTClient, error) {
	cl, err := h.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return cl, nil
}

func (h *hostAdapter) Stop() error {
	return h.dev.Stop()
}

// DeviceFactory creates the platform BLE host (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (Host, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &hostAdapter{dev: dev}, nil
}
