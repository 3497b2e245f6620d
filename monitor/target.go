package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/srg/blemon/internal/device"
)

// MaxTargets is the largest number of characteristics one session subscribes to.
const MaxTargets = 3

// Target names a characteristic inside a service.
type Target struct {
	Service        string `json:"service"`
	Characteristic string `json:"characteristic"`
}

func (t Target) String() string {
	return t.Service + "/" + t.Characteristic
}

// ParseTarget parses "service/characteristic", e.g. "181a/2a6e".
func ParseTarget(s string) (Target, error) {
	svc, char, ok := strings.Cut(s, "/")
	if !ok {
		return Target{}, fmt.Errorf("invalid target %q: expected <service>/<characteristic>", s)
	}
	uuids, err := device.ValidateUUID(svc, char)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target %q: %w", s, err)
	}
	return Target{Service: uuids[0], Characteristic: uuids[1]}, nil
}

// Profiles are the built-in target sets, selectable by name.
var Profiles = map[string][]Target{
	"temperature": {
		{Service: device.ServiceEnvironmentalSensing, Characteristic: device.CharacteristicTemperature},
	},
	"environmental": {
		{Service: device.ServiceEnvironmentalSensing, Characteristic: device.CharacteristicTemperature},
		{Service: device.ServiceEnvironmentalSensing, Characteristic: device.CharacteristicHumidity},
	},
	"heart-rate": {
		{Service: device.ServiceHeartRate, Characteristic: device.CharacteristicHeartRate},
		{Service: device.ServiceBattery, Characteristic: device.CharacteristicBatteryLevel},
	},
}

// ProfileNames returns the built-in profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for name := range Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProfileTargets returns a copy of the targets of a built-in profile.
func ProfileTargets(name string) ([]Target, error) {
	targets, ok := Profiles[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return append([]Target(nil), targets...), nil
}

// Options configures one monitoring session.
type Options struct {
	Address string
	Targets []Target

	// ConnectTimeout bounds the Connecting state; 0 waits for the platform.
	ConnectTimeout time.Duration

	// ReadRSSI reads the remote signal strength after every notification.
	ReadRSSI bool

	// Forget invalidates platform pairing and GATT cache state before the
	// connection is released.
	Forget bool
}

// Validate checks the options and normalizes the address and target UUIDs in place.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Address) == "" {
		return fmt.Errorf("address is required")
	}
	addr, err := device.NormalizeAddress(o.Address)
	if err != nil {
		return err
	}
	o.Address = addr
	if len(o.Targets) == 0 || len(o.Targets) > MaxTargets {
		return fmt.Errorf("between 1 and %d targets are required, got %d", MaxTargets, len(o.Targets))
	}
	seen := make(map[Target]bool, len(o.Targets))
	for i, t := range o.Targets {
		uuids, err := device.ValidateUUID(t.Service, t.Characteristic)
		if err != nil {
			return fmt.Errorf("target %d: %w", i, err)
		}
		t = Target{Service: uuids[0], Characteristic: uuids[1]}
		if seen[t] {
			return fmt.Errorf("target %s listed twice", t)
		}
		seen[t] = true
		o.Targets[i] = t
	}
	return nil
}
