package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "lowercase MAC", input: "c7:95:da:5f:44:8a", expected: "C7:95:DA:5F:44:8A"},
		{name: "dashed MAC", input: "c7-95-da-5f-44-8a", expected: "C7:95:DA:5F:44:8A"},
		{name: "surrounding spaces", input: "  11:22:33:44:55:66 ", expected: "11:22:33:44:55:66"},
		{name: "CoreBluetooth UUID", input: "5a3c1e2f-8b7d-4c6e-9f01-23456789abcd", expected: "5A3C1E2F-8B7D-4C6E-9F01-23456789ABCD"},
		{name: "EUI-64 is not a BLE address", input: "00:00:00:00:fe:80:00:00", wantErr: true},
		{name: "too short", input: "11:22:33", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "sensor", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
