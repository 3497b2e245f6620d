// Package bluez invalidates BlueZ pairing and GATT cache state over D-Bus.
package bluez

import (
	"context"
	"fmt"
	"strings"
	"sync"

	dbus "github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/groutine"
)

const (
	bluezService    = "org.bluez"
	deviceIface     = "org.bluez.Device1"
	adapterIface    = "org.bluez.Adapter1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
)

// managedObjects is the shape returned by ObjectManager.GetManagedObjects
type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// bus is the part of the system bus the forgetter talks to
type bus interface {
	ManagedObjects() (managedObjects, error)
	RemoveDevice(adapter, dev dbus.ObjectPath) error
}

// systemBus implements bus over a lazily opened system bus connection
type systemBus struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func (b *systemBus) ensure() (*dbus.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return b.conn, nil
	}
	c, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}
	b.conn = c
	return c, nil
}

func (b *systemBus) ManagedObjects() (managedObjects, error) {
	conn, err := b.ensure()
	if err != nil {
		return nil, err
	}
	var objs managedObjects
	obj := conn.Object(bluezService, dbus.ObjectPath("/"))
	if call := obj.Call(objManagerIface+".GetManagedObjects", 0); call.Err != nil {
		return nil, fmt.Errorf("bluez: GetManagedObjects: %w", call.Err)
	} else if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bluez: decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

func (b *systemBus) RemoveDevice(adapter, dev dbus.ObjectPath) error {
	conn, err := b.ensure()
	if err != nil {
		return err
	}
	if call := conn.Object(bluezService, adapter).Call(adapterIface+".RemoveDevice", 0, dev); call.Err != nil {
		return fmt.Errorf("bluez: RemoveDevice %s: %w", dev, call.Err)
	}
	return nil
}

// Forgetter removes a peripheral from its BlueZ adapter. BlueZ drops the
// bond and the cached GATT database together with the device object.
type Forgetter struct {
	bus    bus
	logger *logrus.Logger
}

// NewForgetter creates a Forgetter bound to the system bus.
func NewForgetter(logger *logrus.Logger) *Forgetter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Forgetter{bus: &systemBus{}, logger: logger}
}

// Forget removes the device with the given address. A device BlueZ does
// not know about is already forgotten.
func (f *Forgetter) Forget(ctx context.Context, address string) error {
	return groutine.Call(ctx, "bluez-forget", func() error {
		objs, err := f.bus.ManagedObjects()
		if err != nil {
			return err
		}

		devPath, adapter, ok := findDevice(objs, address)
		if !ok {
			f.logger.WithField("address", address).Debug("Device unknown to BlueZ, nothing to forget")
			return nil
		}

		if err := f.bus.RemoveDevice(adapter, devPath); err != nil {
			return err
		}
		f.logger.WithFields(logrus.Fields{
			"address": address,
			"path":    devPath,
		}).Info("Removed device from BlueZ adapter")
		return nil
	})
}

// findDevice locates the Device1 object for address and its owning adapter.
func findDevice(objs managedObjects, address string) (dev, adapter dbus.ObjectPath, ok bool) {
	for path, ifaces := range objs {
		props, isDevice := ifaces[deviceIface]
		if !isDevice {
			continue
		}
		mac := macFromPath(path)
		if v, has := props["Address"]; has {
			if s, _ := v.Value().(string); s != "" {
				mac = s
			}
		}
		if !strings.EqualFold(mac, address) {
			continue
		}
		if v, has := props["Adapter"]; has {
			if a, _ := v.Value().(dbus.ObjectPath); a != "" {
				return path, a, true
			}
		}
		return path, adapterFromPath(path), true
	}
	return "", "", false
}

// macFromPath turns .../dev_XX_XX_XX_XX_XX_XX into XX:XX:XX:XX:XX:XX
func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}

func adapterFromPath(p dbus.ObjectPath) dbus.ObjectPath {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return dbus.ObjectPath(s[:idx])
}
