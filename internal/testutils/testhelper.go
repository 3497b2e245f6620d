// Package testutils holds builders, asserters and helpers shared by tests.
package testutils

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// NewTestLogger returns a logger at debug level that writes to out, or
// discards output when out is nil.
func NewTestLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // debug logs help tracking execution flow
	if out == nil {
		out = io.Discard
	}
	logger.SetOutput(out)
	return logger
}

func CreateAdvertisement(name, address string, rssi int) *Advertisement {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi).Build()
}

func CreateAdvertisementFromJSON(jsonStrFmt string, args ...interface{}) *Advertisement {
	return NewAdvertisementBuilder().FromJSON(jsonStrFmt, args...).Build()
}

func CreateProfileFromJSON(jsonStrFmt string, args ...interface{}) *device.Profile {
	return NewProfileBuilder().FromJSON(jsonStrFmt, args...).Build()
}

// ExpectScan makes central deliver advs on its next Scan call and then
// behave like a platform scan: block until the context is done and return
// nil.
func ExpectScan(central *mocks.MockCentral, advs ...device.Advertisement) *mock.Call {
	return central.On("Scan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			handler := args.Get(2).(func(device.Advertisement))
			for _, adv := range advs {
				handler(adv)
			}
			<-ctx.Done()
		}).
		Return(nil)
}
