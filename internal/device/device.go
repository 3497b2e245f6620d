package device

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TxPowerUnavailable is the advertised TX power value meaning "not present".
const TxPowerUnavailable = 127

// Advertisement is a single advertising report as delivered by the platform.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	ServiceData() []struct {
		UUID string
		Data []byte
	}

	Services() []string
	OverflowService() []string
	TxPowerLevel() int
	Connectable() bool
	SolicitedService() []string

	RSSI() int
	Addr() string
}

// Central is the BLE host role: it scans for advertisements and opens GATT
// sessions to peripherals.
type Central interface {
	// Scan delivers advertisements to handler until ctx is done. A
	// cancelled ctx is not an error.
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error

	// Dial opens a GATT session. The returned Client is the connection
	// handle and must be released with CancelConnection.
	Dial(ctx context.Context, address string) (Client, error)
}

// Client is one open GATT session.
type Client interface {
	Address() string

	// DiscoverProfile enumerates services, characteristics and descriptors.
	DiscoverProfile(ctx context.Context) (*Profile, error)

	// EnableNotifications writes the Client Characteristic Configuration
	// descriptor and returns once the peripheral acknowledged the write.
	EnableNotifications(ctx context.Context, char *Characteristic, handler func([]byte)) error

	DisableNotifications(char *Characteristic) error
	ReadRSSI(ctx context.Context) (int, error)

	// CancelConnection releases the session. It is safe to call on a
	// session the peripheral already dropped.
	CancelConnection() error

	// Disconnected is closed when the session ends for any reason.
	Disconnected() <-chan struct{}
}

// Forgetter invalidates platform pairing and GATT cache state for a
// peripheral so that the next connection starts clean.
type Forgetter interface {
	Forget(ctx context.Context, address string) error
}

// Property is the GATT characteristic properties bitmask.
type Property uint8

const (
	PropBroadcast     Property = 0x01
	PropRead          Property = 0x02
	PropWriteNR       Property = 0x04
	PropWrite         Property = 0x08
	PropNotify        Property = 0x10
	PropIndicate      Property = 0x20
	PropSignedWrite   Property = 0x40
	PropExtendedProps Property = 0x80
)

const notificationCapable = PropNotify | PropIndicate

// CanNotify reports whether the characteristic supports notify or indicate.
func (p Property) CanNotify() bool { return p&notificationCapable != 0 }

var propertyNames = []struct {
	flag Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteNR, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtendedProps, "extended"},
}

// String renders the set flags as "read,notify".
func (p Property) String() string {
	names := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p&pn.flag != 0 {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseProperty is the inverse of Property.String.
func ParseProperty(s string) (Property, error) {
	var p Property
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		found := false
		for _, pn := range propertyNames {
			if pn.name == name {
				p |= pn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown characteristic property %q", name)
		}
	}
	return p, nil
}

// Characteristic is a discovered GATT characteristic.
type Characteristic struct {
	Service     string   `json:"service"`
	UUID        string   `json:"uuid"`
	Properties  Property `json:"properties"`
	Descriptors []string `json:"descriptors,omitempty"`
}

// Service is a discovered GATT service.
type Service struct {
	UUID            string            `json:"uuid"`
	Characteristics []*Characteristic `json:"characteristics"`
}

// Profile is the GATT database of a connected peripheral.
type Profile struct {
	Services []*Service `json:"services"`
}

// FindService looks a service up by any spelling of its UUID.
func (p *Profile) FindService(uuid string) (*Service, error) {
	n := NormalizeUUID(uuid)
	for _, s := range p.Services {
		if NormalizeUUID(s.UUID) == n {
			return s, nil
		}
	}
	return nil, &NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

// FindCharacteristic resolves a characteristic inside a service.
func (p *Profile) FindCharacteristic(service, uuid string) (*Characteristic, error) {
	svc, err := p.FindService(service)
	if err != nil {
		return nil, err
	}
	n := NormalizeUUID(uuid)
	for _, c := range svc.Characteristics {
		if NormalizeUUID(c.UUID) == n {
			return c, nil
		}
	}
	return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
}

// DeviceClass is the transport class of a discovered peripheral.
type DeviceClass string

const (
	ClassUnknown DeviceClass = "unknown"
	ClassLE      DeviceClass = "le"
	ClassDual    DeviceClass = "dual"
)

// Peripheral is one scan match. Peripherals are values: a rediscovery
// produces a new Peripheral that supersedes the previous one.
type Peripheral struct {
	Address     string      `json:"address"`
	Name        string      `json:"name"`
	RSSI        int         `json:"rssi"`
	Class       DeviceClass `json:"class"`
	Services    []string    `json:"services"`
	TxPower     *int        `json:"tx_power,omitempty"`
	Connectable bool        `json:"connectable"`
	LastSeen    time.Time   `json:"last_seen"`
}

// NewPeripheral builds a Peripheral from an advertisement seen at time at.
func NewPeripheral(adv Advertisement, at time.Time) Peripheral {
	p := Peripheral{
		Address:     strings.ToUpper(adv.Addr()),
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		Class:       ClassLE,
		Connectable: adv.Connectable(),
		LastSeen:    at,
	}

	seen := make(map[string]struct{})
	for _, group := range [][]string{adv.Services(), adv.OverflowService()} {
		for _, u := range group {
			n := NormalizeUUID(u)
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			p.Services = append(p.Services, n)
		}
	}
	sort.Strings(p.Services)
	if p.Services == nil {
		p.Services = []string{}
	}

	if tx := adv.TxPowerLevel(); tx != TxPowerUnavailable {
		p.TxPower = &tx
	}
	return p
}

// DisplayName returns the advertised name or a placeholder.
func (p Peripheral) DisplayName() string {
	if p.Name == "" {
		return "Unknown"
	}
	return p.Name
}

// HasService reports whether the peripheral advertised the service.
func (p Peripheral) HasService(uuid string) bool {
	n := NormalizeUUID(uuid)
	for _, s := range p.Services {
		if s == n {
			return true
		}
	}
	return false
}
