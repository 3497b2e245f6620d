// Package bledb holds the subset of the Bluetooth SIG assigned numbers that
// blemon understands, together with UUID normalization helpers.
//
// All lookups accept any of the common UUID spellings: "180d", "0x180D",
// "0000180d-0000-1000-8000-00805f9b34fb", "{0000180D-...}".
package bledb

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"181a": "Environmental Sensing",
}

var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a19": "Battery Level",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",
	"2a38": "Body Sensor Location",
	"2a6e": "Temperature",
	"2a6f": "Humidity",
}

var descriptors = map[string]string{
	"2901": "Characteristic User Descriptor",
	"2902": "Client Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
}

// NormalizeUUID converts a UUID string to the internal format: lowercase,
// no dashes, no braces, no 0x prefix. 128-bit UUIDs built on the SIG base
// are reduced to their 16-bit short form.
func NormalizeUUID(u string) string {
	s := strings.TrimSpace(u)
	s = strings.TrimPrefix(strings.TrimSuffix(s, "}"), "{")
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes every entry of uuids.
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

// ParseUUID normalizes u and verifies that it is a well-formed 16, 32 or
// 128-bit UUID.
func ParseUUID(u string) (string, error) {
	n := NormalizeUUID(u)
	switch len(n) {
	case 4, 8:
		if !isHex(n) {
			return "", fmt.Errorf("invalid UUID %q: not hexadecimal", u)
		}
		return n, nil
	case 32:
		if _, err := uuid.Parse(n); err != nil {
			return "", fmt.Errorf("invalid UUID %q: %w", u, err)
		}
		return n, nil
	default:
		return "", fmt.Errorf("invalid UUID %q: unexpected length %d", u, len(n))
	}
}

// ExpandUUID returns the canonical dashed 128-bit form of u.
func ExpandUUID(u string) (string, error) {
	n, err := ParseUUID(u)
	if err != nil {
		return "", err
	}
	switch len(n) {
	case 4:
		n = "0000" + n + sigBaseSuffix
	case 8:
		n = n + sigBaseSuffix
	}
	parsed, err := uuid.Parse(n)
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", u, err)
	}
	return parsed.String(), nil
}

// LookupService returns the SIG name of a service or "" if unknown.
func LookupService(u string) string {
	return services[NormalizeUUID(u)]
}

// LookupCharacteristic returns the SIG name of a characteristic or "" if unknown.
func LookupCharacteristic(u string) string {
	return characteristics[NormalizeUUID(u)]
}

// LookupDescriptor returns the SIG name of a descriptor or "" if unknown.
func LookupDescriptor(u string) string {
	return descriptors[NormalizeUUID(u)]
}

// Lookup resolves u against services, characteristics and descriptors, in
// that order. kind is "" when nothing matched.
func Lookup(u string) (name, kind string) {
	n := NormalizeUUID(u)
	if v, ok := services[n]; ok {
		return v, "service"
	}
	if v, ok := characteristics[n]; ok {
		return v, "characteristic"
	}
	if v, ok := descriptors[n]; ok {
		return v, "descriptor"
	}
	return "", ""
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
