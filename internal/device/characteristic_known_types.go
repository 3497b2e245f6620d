package device

import (
	"encoding/binary"
	"fmt"

	"github.com/srg/blemon/internal/reading"
)

// Well-known GATT UUIDs (16-bit short form, normalized without dashes)
const (
	ServiceEnvironmentalSensing = "181a"
	ServiceHeartRate            = "180d"
	ServiceBattery              = "180f"

	CharacteristicTemperature     = "2a6e"
	CharacteristicHumidity        = "2a6f"
	CharacteristicHeartRate       = "2a37"
	CharacteristicBatteryLevel    = "2a19"
	DescriptorClientCharConfigure = "2902"
)

// CharacteristicDecoder converts a raw characteristic value to a reading.
type CharacteristicDecoder func([]byte) (*reading.Reading, error)

// decodeTemperature: sint16 little-endian, 0.01 °C resolution.
func decodeTemperature(value []byte) (*reading.Reading, error) {
	if len(value) < 2 {
		return nil, fmt.Errorf("%w: temperature needs 2 bytes, got %d", ErrMalformedValue, len(value))
	}
	v := float64(int16(binary.LittleEndian.Uint16(value))) / 100
	return &reading.Reading{
		Domain: reading.Temperature,
		Value:  v,
		Text:   fmt.Sprintf("%.2f °C", v),
		Unit:   "°C",
	}, nil
}

// decodeHumidity: uint16 little-endian, 0.01 % resolution.
func decodeHumidity(value []byte) (*reading.Reading, error) {
	if len(value) < 2 {
		return nil, fmt.Errorf("%w: humidity needs 2 bytes, got %d", ErrMalformedValue, len(value))
	}
	v := float64(binary.LittleEndian.Uint16(value)) / 100
	return &reading.Reading{
		Domain: reading.Humidity,
		Value:  v,
		Text:   fmt.Sprintf("%.2f %%", v),
		Unit:   "%",
	}, nil
}

func decodeBatteryLevel(value []byte) (*reading.Reading, error) {
	if len(value) < 1 {
		return nil, fmt.Errorf("%w: battery level is empty", ErrMalformedValue)
	}
	v := int(value[0])
	return &reading.Reading{
		Domain: reading.Battery,
		Value:  float64(v),
		Text:   fmt.Sprintf("%d %%", v),
		Unit:   "%",
	}, nil
}

// decodeHeartRate parses a Heart Rate Measurement. Bit 0 of the flags byte
// selects a uint8 or uint16 beats-per-minute field.
func decodeHeartRate(value []byte) (*reading.Reading, error) {
	if len(value) < 2 {
		return nil, fmt.Errorf("%w: heart rate needs at least 2 bytes, got %d", ErrMalformedValue, len(value))
	}
	flags := value[0]
	var bpm int
	if flags&0x01 != 0 {
		if len(value) < 3 {
			return nil, fmt.Errorf("%w: 16-bit heart rate needs 3 bytes, got %d", ErrMalformedValue, len(value))
		}
		bpm = int(binary.LittleEndian.Uint16(value[1:3]))
	} else {
		bpm = int(value[1])
	}
	return &reading.Reading{
		Domain: reading.HeartRate,
		Value:  float64(bpm),
		Text:   fmt.Sprintf("%d bpm", bpm),
		Unit:   "bpm",
	}, nil
}

// characteristicDecoders maps normalized characteristic UUIDs to their decoders
var characteristicDecoders = map[string]CharacteristicDecoder{
	CharacteristicTemperature:  decodeTemperature,
	CharacteristicHumidity:     decodeHumidity,
	CharacteristicBatteryLevel: decodeBatteryLevel,
	CharacteristicHeartRate:    decodeHeartRate,
}

var characteristicDomains = map[string]reading.Domain{
	CharacteristicTemperature:  reading.Temperature,
	CharacteristicHumidity:     reading.Humidity,
	CharacteristicBatteryLevel: reading.Battery,
	CharacteristicHeartRate:    reading.HeartRate,
}

// CharacteristicDomain returns the reading domain a characteristic feeds.
func CharacteristicDomain(uuid string) (reading.Domain, bool) {
	d, ok := characteristicDomains[NormalizeUUID(uuid)]
	return d, ok
}

// IsDecodableCharacteristic returns true if the characteristic UUID has a decoder
func IsDecodableCharacteristic(uuid string) bool {
	_, exists := characteristicDecoders[NormalizeUUID(uuid)]
	return exists
}

// DecodeCharacteristic decodes a characteristic value based on its UUID.
// Returns (nil, nil) for characteristics without a decoder; callers ignore those.
func DecodeCharacteristic(uuid string, value []byte) (*reading.Reading, error) {
	decoder, exists := characteristicDecoders[NormalizeUUID(uuid)]
	if !exists {
		return nil, nil
	}
	return decoder(value)
}

// RSSIReading wraps a remote signal strength value as a reading.
func RSSIReading(rssi int) reading.Reading {
	return reading.Reading{
		Domain: reading.RSSI,
		Value:  float64(rssi),
		Text:   fmt.Sprintf("%d dBm", rssi),
		Unit:   "dBm",
	}
}
