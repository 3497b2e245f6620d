package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/blemon/internal/device"
)

// Advertisement is a plain device.Advertisement for tests.
type Advertisement struct {
	Name          string
	Address       string
	Rssi          int
	ServiceList   []string
	Overflow      []string
	ManufData     []byte
	TxPower       int
	IsConnectable bool
}

var _ device.Advertisement = (*Advertisement)(nil)

func (a *Advertisement) LocalName() string        { return a.Name }
func (a *Advertisement) ManufacturerData() []byte { return a.ManufData }
func (a *Advertisement) ServiceData() []struct {
	UUID string
	Data []byte
} {
	return nil
}
func (a *Advertisement) Services() []string         { return a.ServiceList }
func (a *Advertisement) OverflowService() []string  { return a.Overflow }
func (a *Advertisement) TxPowerLevel() int          { return a.TxPower }
func (a *Advertisement) Connectable() bool          { return a.IsConnectable }
func (a *Advertisement) SolicitedService() []string { return nil }
func (a *Advertisement) RSSI() int                  { return a.Rssi }
func (a *Advertisement) Addr() string               { return a.Address }

// AdvertisementBuilder builds advertisements for tests with a fluent API.
// Unset TX power is reported as unavailable.
type AdvertisementBuilder struct {
	adv Advertisement
}

// NewAdvertisementBuilder creates a builder for a connectable advertisement
// with RSSI -50 and no TX power.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: Advertisement{
		Rssi:          -50,
		TxPower:       device.TxPowerUnavailable,
		IsConnectable: true,
	}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

// WithServices adds service UUIDs in any spelling ("180D", full 128-bit).
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceList = append(b.adv.ServiceList, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.ManufData = data
	return b
}

func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.adv.TxPower = power
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.IsConnectable = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Absent fields keep their current value. Panics on invalid JSON as this is
// intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var data struct {
		Name        *string  `json:"name"`
		Address     *string  `json:"address"`
		RSSI        *int     `json:"rssi"`
		Services    []string `json:"services"`
		TxPower     *int     `json:"txPower"`
		Connectable *bool    `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		panic(fmt.Sprintf("FromJSON: failed to unmarshal advertisement: %v", err))
	}

	if data.Name != nil {
		b.adv.Name = *data.Name
	}
	if data.Address != nil {
		b.adv.Address = *data.Address
	}
	if data.RSSI != nil {
		b.adv.Rssi = *data.RSSI
	}
	if data.Services != nil {
		b.adv.ServiceList = data.Services
	}
	if data.TxPower != nil {
		b.adv.TxPower = *data.TxPower
	}
	if data.Connectable != nil {
		b.adv.IsConnectable = *data.Connectable
	}
	return b
}

// Build returns a copy of the configured advertisement.
func (b *AdvertisementBuilder) Build() *Advertisement {
	adv := b.adv
	adv.ServiceList = append([]string(nil), b.adv.ServiceList...)
	return &adv
}
