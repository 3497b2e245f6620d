package goble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/groutine"
)

// client implements device.Client for one go-ble GATT session
type client struct {
	cl      GATTClient
	address string
	logger  *logrus.Logger

	mu         sync.Mutex
	chars      map[string]*ble.Characteristic // keyed by charKey
	subscribed map[string]bool                // charKey -> indicate mode
}

func newClient(cl GATTClient, address string, logger *logrus.Logger) *client {
	return &client{
		cl:         cl,
		address:    address,
		logger:     logger,
		chars:      make(map[string]*ble.Characteristic),
		subscribed: make(map[string]bool),
	}
}

func charKey(service, char string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(char)
}

func (c *client) Address() string {
	return c.address
}

// DiscoverProfile runs a forced profile discovery and converts the result.
func (c *client) DiscoverProfile(ctx context.Context) (*device.Profile, error) {
	var bleProfile *ble.Profile
	err := groutine.Call(ctx, "ble-discover-profile", func() error {
		var err error
		bleProfile, err = c.cl.DiscoverProfile(true)
		return err
	})
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": c.address,
			"error":   err,
		}).Error("Failed to discover profile")
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	profile := &device.Profile{}
	chars := make(map[string]*ble.Characteristic)
	for _, bleSvc := range bleProfile.Services {
		svc := &device.Service{UUID: device.NormalizeUUID(bleSvc.UUID.String())}
		for _, bleChar := range bleSvc.Characteristics {
			ch := &device.Characteristic{
				Service:    svc.UUID,
				UUID:       device.NormalizeUUID(bleChar.UUID.String()),
				Properties: convertProperties(bleChar.Property),
			}
			for _, d := range bleChar.Descriptors {
				ch.Descriptors = append(ch.Descriptors, device.NormalizeUUID(d.UUID.String()))
			}
			sort.Strings(ch.Descriptors)
			svc.Characteristics = append(svc.Characteristics, ch)
			chars[charKey(svc.UUID, ch.UUID)] = bleChar
		}
		profile.Services = append(profile.Services, svc)
	}
	sort.Slice(profile.Services, func(i, j int) bool {
		return profile.Services[i].UUID < profile.Services[j].UUID
	})

	c.mu.Lock()
	c.chars = chars
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"address":  c.address,
		"services": len(profile.Services),
	}).Debug("Profile discovered successfully")
	return profile, nil
}

func (c *client) lookup(char *device.Characteristic) (*ble.Characteristic, string, error) {
	key := charKey(char.Service, char.UUID)
	c.mu.Lock()
	bc, ok := c.chars[key]
	c.mu.Unlock()
	if !ok {
		return nil, key, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{char.Service, char.UUID}}
	}
	return bc, key, nil
}

// EnableNotifications subscribes to the characteristic. go-ble writes the
// CCCD and returns after the write response, so a nil error is the
// peripheral's acknowledgement.
func (c *client) EnableNotifications(ctx context.Context, char *device.Characteristic, handler func([]byte)) error {
	bc, key, err := c.lookup(char)
	if err != nil {
		return err
	}
	if !char.Properties.CanNotify() {
		return &device.DescriptorWriteError{Service: char.Service, Characteristic: char.UUID, Err: device.ErrUnsupported}
	}

	// Prefer notify, fall back to indicate when that is all the characteristic offers
	ind := char.Properties&device.PropNotify == 0

	err = groutine.Call(ctx, "ble-enable-notifications", func() error {
		return c.cl.Subscribe(bc, ind, func(data []byte) {
			handler(data)
		})
	})
	if err != nil {
		return &device.DescriptorWriteError{Service: char.Service, Characteristic: char.UUID, Err: NormalizeError(err)}
	}

	c.mu.Lock()
	c.subscribed[key] = ind
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"service":        char.Service,
		"characteristic": char.UUID,
		"indicate":       ind,
	}).Debug("Notifications enabled")
	return nil
}

func (c *client) DisableNotifications(char *device.Characteristic) error {
	bc, key, err := c.lookup(char)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ind, ok := c.subscribed[key]
	delete(c.subscribed, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	return NormalizeError(c.cl.Unsubscribe(bc, ind))
}

func (c *client) ReadRSSI(ctx context.Context) (int, error) {
	var rssi int
	err := groutine.Call(ctx, "ble-read-rssi", func() error {
		rssi = c.cl.ReadRSSI()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rssi, nil
}

// CancelConnection releases the session. A session the peripheral already
// dropped is not an error.
func (c *client) CancelConnection() error {
	err := NormalizeError(c.cl.CancelConnection())
	if errors.Is(err, device.ErrNotConnected) {
		c.logger.WithField("address", c.address).Debug("Connection already closed by peer")
		return nil
	}
	return err
}

func (c *client) Disconnected() <-chan struct{} {
	return c.cl.Disconnected()
}
