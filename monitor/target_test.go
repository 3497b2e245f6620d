package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("0x181A/00002a6e-0000-1000-8000-00805f9b34fb")
	require.NoError(t, err)
	assert.Equal(t, Target{Service: "181a", Characteristic: "2a6e"}, target)
	assert.Equal(t, "181a/2a6e", target.String())

	_, err = ParseTarget("181a")
	assert.ErrorContains(t, err, "expected <service>/<characteristic>")

	_, err = ParseTarget("181a/zz")
	assert.Error(t, err)
}

func TestProfileTargets(t *testing.T) {
	targets, err := ProfileTargets("Heart-Rate")
	require.NoError(t, err)
	assert.Len(t, targets, 2)

	targets[0].Service = "ffff"
	assert.Equal(t, "180d", Profiles["heart-rate"][0].Service, "MUST return a copy")

	_, err = ProfileTargets("pressure")
	assert.ErrorContains(t, err, "environmental, heart-rate, temperature")
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{"missing address", Options{Targets: Profiles["temperature"]}, "address is required"},
		{"bad address", Options{Address: "sensor", Targets: Profiles["temperature"]}, "invalid address"},
		{"no targets", Options{Address: "AA:BB:CC:DD:EE:FF"}, "between 1 and 3 targets"},
		{"too many targets", Options{Address: "AA:BB:CC:DD:EE:FF", Targets: make([]Target, 4)}, "between 1 and 3 targets"},
		{"bad uuid", Options{Address: "AA:BB:CC:DD:EE:FF", Targets: []Target{{Service: "181a", Characteristic: "xyz"}}}, "target 0"},
		{"duplicate", Options{Address: "AA:BB:CC:DD:EE:FF", Targets: []Target{{"181a", "2a6e"}, {"0x181A", "2A6E"}}}, "listed twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.opts.Validate(), tt.wantErr)
		})
	}

	ok := Options{Address: "aa:bb:cc:dd:ee:ff", Targets: []Target{{"0x180D", "00002A37-0000-1000-8000-00805F9B34FB"}}}
	require.NoError(t, ok.Validate())
	assert.Equal(t, Target{"180d", "2a37"}, ok.Targets[0], "Validate MUST normalize target UUIDs")
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", ok.Address, "Validate MUST upper-case the address")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "enabling-notifications", StateEnablingNotifications.String())
	assert.Equal(t, "state(42)", State(42).String())
}
