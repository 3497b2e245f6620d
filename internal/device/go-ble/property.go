package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blemon/internal/device"
)

// convertProperties maps go-ble property flags onto device.Property.
func convertProperties(p ble.Property) device.Property {
	var out device.Property
	for _, m := range []struct {
		from ble.Property
		to   device.Property
	}{
		{ble.CharBroadcast, device.PropBroadcast},
		{ble.CharRead, device.PropRead},
		{ble.CharWriteNR, device.PropWriteNR},
		{ble.CharWrite, device.PropWrite},
		{ble.CharNotify, device.PropNotify},
		{ble.CharIndicate, device.PropIndicate},
		{ble.CharSignedWrite, device.PropSignedWrite},
		{ble.CharExtended, device.PropExtendedProps},
	} {
		if p&m.from != 0 {
			out |= m.to
		}
	}
	return out
}
