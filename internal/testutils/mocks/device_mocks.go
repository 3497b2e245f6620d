package mocks

import (
	"context"

	"github.com/srg/blemon/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockCentral mocks device.Central.
type MockCentral struct {
	mock.Mock
}

func (m *MockCentral) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	args := m.Called(ctx, allowDup, handler)
	return args.Error(0)
}

func (m *MockCentral) Dial(ctx context.Context, address string) (device.Client, error) {
	args := m.Called(ctx, address)
	cl, _ := args.Get(0).(device.Client)
	return cl, args.Error(1)
}

// MockClient mocks device.Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Address() string {
	return m.Called().String(0)
}

func (m *MockClient) DiscoverProfile(ctx context.Context) (*device.Profile, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).(*device.Profile)
	return p, args.Error(1)
}

func (m *MockClient) EnableNotifications(ctx context.Context, char *device.Characteristic, handler func([]byte)) error {
	args := m.Called(ctx, char, handler)
	return args.Error(0)
}

func (m *MockClient) DisableNotifications(char *device.Characteristic) error {
	return m.Called(char).Error(0)
}

func (m *MockClient) ReadRSSI(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	args := m.Called()
	if ch, ok := args.Get(0).(chan struct{}); ok {
		return ch
	}
	ch, _ := args.Get(0).(<-chan struct{})
	return ch
}

// MockForgetter mocks device.Forgetter.
type MockForgetter struct {
	mock.Mock
}

func (m *MockForgetter) Forget(ctx context.Context, address string) error {
	return m.Called(ctx, address).Error(0)
}
