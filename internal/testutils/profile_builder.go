package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/blemon/internal/device"
)

// CharacteristicConfig represents a GATT characteristic in a test profile
type CharacteristicConfig struct {
	UUID        string   `json:"uuid"`
	Properties  string   `json:"properties,omitempty"` // e.g., "read,notify"
	Descriptors []string `json:"descriptors,omitempty"`
}

// ServiceConfig represents a GATT service in a test profile
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// ProfileBuilder builds a device.Profile for tests.
type ProfileBuilder struct {
	services []ServiceConfig
}

func NewProfileBuilder() *ProfileBuilder {
	return &ProfileBuilder{}
}

// WithService adds a service to the profile
func (b *ProfileBuilder) WithService(uuid string) *ProfileBuilder {
	b.services = append(b.services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
// Empty properties default to "read,notify".
func (b *ProfileBuilder) WithCharacteristic(uuid, properties string) *ProfileBuilder {
	if len(b.services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &b.services[len(b.services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{UUID: uuid, Properties: properties})
	return b
}

// FromJSON replaces the profile with one described as
// {"services":[{"uuid":"181a","characteristics":[{"uuid":"2a6e","properties":"read,notify"}]}]}
func (b *ProfileBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *ProfileBuilder {
	var config struct {
		Services []ServiceConfig `json:"services"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("ProfileBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.services = config.Services
	return b
}

// Build converts the configuration to a device.Profile. UUIDs are normalized
// the same way the platform adapter normalizes them.
func (b *ProfileBuilder) Build() *device.Profile {
	profile := &device.Profile{Services: make([]*device.Service, 0, len(b.services))}
	for _, sc := range b.services {
		svc := &device.Service{UUID: device.NormalizeUUID(sc.UUID)}
		for _, cc := range sc.Characteristics {
			props := cc.Properties
			if props == "" {
				props = "read,notify"
			}
			p, err := device.ParseProperty(props)
			if err != nil {
				panic(fmt.Sprintf("ProfileBuilder.Build: %v", err))
			}
			descriptors := cc.Descriptors
			if descriptors == nil && p.CanNotify() {
				descriptors = []string{device.DescriptorClientCharConfigure}
			}
			svc.Characteristics = append(svc.Characteristics, &device.Characteristic{
				Service:     svc.UUID,
				UUID:        device.NormalizeUUID(cc.UUID),
				Properties:  p,
				Descriptors: descriptors,
			})
		}
		profile.Services = append(profile.Services, svc)
	}
	return profile
}
