package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blemon/internal/device"
)

// advertisement adapts ble.Advertisement to device.Advertisement
type advertisement struct {
	adv ble.Advertisement
}

// NewAdvertisement wraps a go-ble advertisement.
func NewAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &advertisement{adv: adv}
}

func (a *advertisement) LocalName() string        { return a.adv.LocalName() }
func (a *advertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *advertisement) TxPowerLevel() int        { return a.adv.TxPowerLevel() }
func (a *advertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *advertisement) RSSI() int                { return a.adv.RSSI() }

func (a *advertisement) Addr() string {
	if a.adv.Addr() == nil {
		return ""
	}
	return a.adv.Addr().String()
}

func (a *advertisement) ServiceData() []struct {
	UUID string
	Data []byte
} {
	raw := a.adv.ServiceData()
	result := make([]struct {
		UUID string
		Data []byte
	}, len(raw))
	for i, sd := range raw {
		result[i].UUID = device.NormalizeUUID(sd.UUID.String())
		result[i].Data = sd.Data
	}
	return result
}

func (a *advertisement) Services() []string         { return uuidStrings(a.adv.Services()) }
func (a *advertisement) OverflowService() []string  { return uuidStrings(a.adv.OverflowService()) }
func (a *advertisement) SolicitedService() []string { return uuidStrings(a.adv.SolicitedService()) }

func uuidStrings(uuids []ble.UUID) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = device.NormalizeUUID(u.String())
	}
	return result
}
