// Package mocks holds testify mocks for the go-ble surface and for the
// platform-neutral device abstractions.
package mocks

import (
	"context"

	"github.com/go-ble/ble"
	goble "github.com/srg/blemon/internal/device/go-ble"
	"github.com/stretchr/testify/mock"
)

// MockHost mocks goble.Host.
type MockHost struct {
	mock.Mock
}

func (m *MockHost) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *MockHost) Dial(ctx context.Context, address string) (goble.GATTClient, error) {
	args := m.Called(ctx, address)
	cl, _ := args.Get(0).(goble.GATTClient)
	return cl, args.Error(1)
}

func (m *MockHost) Stop() error {
	args := m.Called()
	return args.Error(0)
}

// MockGATTClient mocks the subset of ble.Client used by a session.
type MockGATTClient struct {
	mock.Mock
}

func (m *MockGATTClient) Addr() ble.Addr {
	args := m.Called()
	addr, _ := args.Get(0).(ble.Addr)
	return addr
}

func (m *MockGATTClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *MockGATTClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := m.Called(c, ind, h)
	return args.Error(0)
}

func (m *MockGATTClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	args := m.Called(c, ind)
	return args.Error(0)
}

func (m *MockGATTClient) ReadRSSI() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockGATTClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockGATTClient) Disconnected() <-chan struct{} {
	args := m.Called()
	if ch, ok := args.Get(0).(chan struct{}); ok {
		return ch
	}
	ch, _ := args.Get(0).(<-chan struct{})
	return ch
}

// MockAdvertisement mocks ble.Advertisement.
type MockAdvertisement struct {
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string {
	return m.Called().String(0)
}

func (m *MockAdvertisement) ManufacturerData() []byte {
	b, _ := m.Called().Get(0).([]byte)
	return b
}

func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	sd, _ := m.Called().Get(0).([]ble.ServiceData)
	return sd
}

func (m *MockAdvertisement) Services() []ble.UUID {
	u, _ := m.Called().Get(0).([]ble.UUID)
	return u
}

func (m *MockAdvertisement) OverflowService() []ble.UUID {
	u, _ := m.Called().Get(0).([]ble.UUID)
	return u
}

func (m *MockAdvertisement) TxPowerLevel() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Connectable() bool {
	return m.Called().Bool(0)
}

func (m *MockAdvertisement) SolicitedService() []ble.UUID {
	u, _ := m.Called().Get(0).([]ble.UUID)
	return u
}

func (m *MockAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Addr() ble.Addr {
	addr, _ := m.Called().Get(0).(ble.Addr)
	return addr
}
