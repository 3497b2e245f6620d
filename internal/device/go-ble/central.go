package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
)

// Central implements device.Central on top of go-ble. The platform host is
// created lazily on first use and shared by scanning and dialing.
type Central struct {
	logger *logrus.Logger

	mu   sync.Mutex
	host Host
}

// NewCentral creates a go-ble backed central.
func NewCentral(logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{logger: logger}
}

func (c *Central) ensureHost() (Host, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.host != nil {
		return c.host, nil
	}
	host, err := DeviceFactory()
	if err != nil {
		c.logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	c.host = host
	return host, nil
}

// Scan runs a platform scan until ctx is done.
func (c *Central) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	host, err := c.ensureHost()
	if err != nil {
		return NormalizeScanError(err)
	}

	c.logger.WithField("allow_duplicates", allowDup).Debug("Starting platform scan...")
	err = host.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewAdvertisement(adv))
	})
	return NormalizeScanError(err)
}

// Dial opens a GATT session with the peripheral at address.
func (c *Central) Dial(ctx context.Context, address string) (device.Client, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	host, err := c.ensureHost()
	if err != nil {
		return nil, err
	}

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	cl, err := host.Dial(ctx, address)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: failed to connect to device with address %q: %w", device.ErrConnectFailed, address, device.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: failed to connect to device with address %q: %w", device.ErrConnectFailed, address, NormalizeError(err))
	}

	return newClient(cl, address, c.logger), nil
}

// Close stops the platform host if it was created.
func (c *Central) Close() error {
	c.mu.Lock()
	host := c.host
	c.host = nil
	c.mu.Unlock()

	if host == nil {
		return nil
	}
	return NormalizeError(host.Stop())
}
