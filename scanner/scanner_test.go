package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/testutils"
	"github.com/srg/blemon/internal/testutils/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// recordingListener captures scanner callbacks.
type recordingListener struct {
	mu        sync.Mutex
	found     []device.Peripheral
	statuses  []bool
	failures  []*device.ScanError
	automatic int
	stopped   chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{stopped: make(chan struct{}, 8)}
}

func (l *recordingListener) OnDeviceFound(p device.Peripheral) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.found = append(l.found, p)
}

func (l *recordingListener) OnScanStatusChanged(scanning bool) {
	l.mu.Lock()
	l.statuses = append(l.statuses, scanning)
	l.mu.Unlock()
	if !scanning {
		l.stopped <- struct{}{}
	}
}

func (l *recordingListener) OnScanFailed(err *device.ScanError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, err)
}

func (l *recordingListener) OnScanFinishedAutomatic() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.automatic++
}

func (l *recordingListener) snapshot() (found []device.Peripheral, statuses []bool, automatic int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]device.Peripheral(nil), l.found...), append([]bool(nil), l.statuses...), l.automatic
}

type ScannerTestSuite struct {
	suite.Suite

	central *mocks.MockCentral
	scanner *Scanner
	adv1    *testutils.Advertisement
	adv2    *testutils.Advertisement
	adv3    *testutils.Advertisement
}

func (s *ScannerTestSuite) SetupTest() {
	s.central = &mocks.MockCentral{}
	s.scanner = NewScanner(s.central, testutils.NewTestLogger(nil))

	s.adv1 = testutils.CreateAdvertisementFromJSON(`{
		"name": "EnvSensor",
		"address": "c7:95:da:5f:44:8a",
		"rssi": -45,
		"services": ["181A", "180F"],
		"txPower": 4
	}`)
	s.adv2 = testutils.CreateAdvertisementFromJSON(`{
		"name": "HRM",
		"address": "11:22:33:44:55:66",
		"rssi": -67,
		"services": ["0000180d-0000-1000-8000-00805f9b34fb"]
	}`)
	s.adv3 = testutils.CreateAdvertisement("Other", "99:88:77:66:55:44", -80)
}

func (s *ScannerTestSuite) TearDownTest() {
	s.scanner.Close()
}

func (s *ScannerTestSuite) scan(opts *ScanOptions, listener Listener) []device.Peripheral {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	devices, err := s.scanner.Scan(ctx, opts, listener)
	s.Require().NoError(err)
	return devices
}

func addresses(devs []device.Peripheral) []string {
	out := make([]string, 0, len(devs))
	for _, d := range devs {
		out = append(out, d.Address)
	}
	return out
}

func (s *ScannerTestSuite) TestAllowListRejectsOtherAddresses() {
	// GOAL: Verify the allow list admits only listed addresses, case-insensitively
	//
	// TEST SCENARIO: three advertisers, allow list with one lower-cased address → only it is reported

	testutils.ExpectScan(s.central, s.adv1, s.adv2, s.adv3)
	listener := newRecordingListener()

	devices := s.scan(&ScanOptions{AllowList: []string{"c7:95:DA:5F:44:8A"}}, listener)

	s.Equal([]string{"C7:95:DA:5F:44:8A"}, addresses(devices), "MUST keep only the allowed address")
	found, _, _ := listener.snapshot()
	s.Require().Len(found, 1, "listener MUST only see the allowed device")
	s.Equal("EnvSensor", found[0].Name)
}

func (s *ScannerTestSuite) TestFilters() {
	tests := []struct {
		name     string
		opts     ScanOptions
		expected []string
	}{
		{
			name:     "no filters",
			expected: []string{"11:22:33:44:55:66", "99:88:77:66:55:44", "C7:95:DA:5F:44:8A"},
		},
		{
			name:     "block list wins over allow list",
			opts:     ScanOptions{AllowList: []string{"11:22:33:44:55:66", "c7:95:da:5f:44:8a"}, BlockList: []string{"11:22:33:44:55:66"}},
			expected: []string{"C7:95:DA:5F:44:8A"},
		},
		{
			name:     "service filter matches any spelling",
			opts:     ScanOptions{ServiceUUIDs: []string{"0x180D"}},
			expected: []string{"11:22:33:44:55:66"},
		},
		{
			name:     "service filter without matches",
			opts:     ScanOptions{ServiceUUIDs: []string{"1809"}},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.central = &mocks.MockCentral{}
			s.scanner = NewScanner(s.central, testutils.NewTestLogger(nil))
			defer s.scanner.Close()
			testutils.ExpectScan(s.central, s.adv1, s.adv2, s.adv3)

			opts := tt.opts
			devices := s.scan(&opts, nil)

			s.Equal(tt.expected, addresses(devices))
		})
	}
}

func (s *ScannerTestSuite) TestAutoStopFiresOnce() {
	// GOAL: Auto-stop ends the scan and reports it exactly once
	//
	// TEST SCENARIO: duration elapses → status false + one automatic finish → later Stop is a no-op

	testutils.ExpectScan(s.central, s.adv1)
	listener := newRecordingListener()

	devices, err := s.scanner.Scan(context.Background(), &ScanOptions{Duration: 20 * time.Millisecond}, listener)
	s.Require().NoError(err)
	s.Len(devices, 1)

	s.scanner.Stop()
	time.Sleep(40 * time.Millisecond)
	s.scanner.Close()

	_, statuses, automatic := listener.snapshot()
	s.Equal(1, automatic, "automatic finish MUST be reported exactly once")
	s.Equal([]bool{true, false}, statuses, "status MUST flip on and off once")
	s.False(s.scanner.IsScanning())
}

func (s *ScannerTestSuite) TestExplicitStopSuppressesAutoStop() {
	// GOAL: Auto-stop never fires after an explicit Stop
	//
	// TEST SCENARIO: start with a short duration → Stop before it elapses → wait past it → no automatic finish

	testutils.ExpectScan(s.central)
	listener := newRecordingListener()

	s.Require().NoError(s.scanner.Start(context.Background(), &ScanOptions{Duration: 30 * time.Millisecond}, listener))
	s.scanner.Stop()
	s.scanner.Stop()

	<-listener.stopped
	time.Sleep(60 * time.Millisecond)
	s.scanner.Close()

	_, statuses, automatic := listener.snapshot()
	s.Zero(automatic, "automatic finish MUST NOT fire after Stop")
	s.Equal([]bool{true, false}, statuses, "repeated Stop MUST report once")
}

func (s *ScannerTestSuite) TestStartWhileScanning() {
	testutils.ExpectScan(s.central)

	s.Require().NoError(s.scanner.Start(context.Background(), &ScanOptions{}, nil))
	s.ErrorIs(s.scanner.Start(context.Background(), &ScanOptions{}, nil), ErrScanInProgress)
	s.True(s.scanner.IsScanning())

	s.scanner.Stop()
	s.False(s.scanner.IsScanning())
}

func (s *ScannerTestSuite) TestRateLimitedFailure() {
	// GOAL: A throttled scan is reported distinctly to the listener and the caller
	//
	// TEST SCENARIO: central fails with rate-limit → OnScanFailed(rate limited) → Scan returns the ScanError

	cause := &device.ScanError{Code: device.ScanErrRateLimited, Err: errors.New("too frequent")}
	s.central.On("Scan", mock.Anything, mock.Anything, mock.Anything).Return(cause)
	listener := newRecordingListener()

	_, err := s.scanner.Scan(context.Background(), &ScanOptions{}, listener)

	serr, ok := device.AsScanError(err)
	s.Require().True(ok, "MUST return a ScanError")
	s.True(serr.IsRateLimited())

	listener.mu.Lock()
	defer listener.mu.Unlock()
	s.Require().Len(listener.failures, 1)
	s.True(listener.failures[0].IsRateLimited(), "listener MUST learn the scan was throttled")
}

func (s *ScannerTestSuite) TestUnclassifiedFailureIsInternal() {
	s.central.On("Scan", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))

	_, err := s.scanner.Scan(context.Background(), nil, nil)

	serr, ok := device.AsScanError(err)
	s.Require().True(ok)
	s.Equal(device.ScanErrInternal, serr.Code)
}

func (s *ScannerTestSuite) TestRediscoverySupersedes() {
	updated := testutils.NewAdvertisementBuilder().
		WithAddress("C7:95:DA:5F:44:8A").
		WithRSSI(-30).
		WithServices("181a").
		Build()
	testutils.ExpectScan(s.central, s.adv1, updated)

	devices := s.scan(&ScanOptions{DuplicateFilter: false}, nil)

	s.Require().Len(devices, 1, "rediscovery MUST replace, not add")
	s.Equal(-30, devices[0].RSSI)
	s.Equal("EnvSensor", devices[0].Name, "name from an earlier report MUST survive a nameless update")
	s.Equal([]string{"181a"}, devices[0].Services)

	var types []DeviceEventType
	for len(s.scanner.Events()) > 0 {
		types = append(types, (<-s.scanner.Events()).Type)
	}
	s.Equal([]DeviceEventType{EventNew, EventUpdated}, types)
}

func (s *ScannerTestSuite) TestDuplicateFilterPassedToPlatform() {
	s.central.On("Scan", mock.Anything, false, mock.Anything).Return(nil).Once()

	_, err := s.scanner.Scan(context.Background(), &ScanOptions{DuplicateFilter: true}, nil)
	s.NoError(err)
	s.central.AssertExpectations(s.T())
}

func (s *ScannerTestSuite) TestExpiry() {
	// GOAL: Peripherals silent for longer than ExpireAfter are dropped
	//
	// TEST SCENARIO: device seen at t0 → clock moves 2m → cleanup publishes Expired and empties the registry

	var clockMu sync.Mutex
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.scanner.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	testutils.ExpectScan(s.central, s.adv1)

	s.Require().NoError(s.scanner.Start(context.Background(), &ScanOptions{
		ExpireAfter:     time.Minute,
		CleanupInterval: 5 * time.Millisecond,
	}, nil))
	defer s.scanner.Stop()

	first := <-s.scanner.Events()
	s.Equal(EventNew, first.Type)

	clockMu.Lock()
	now = now.Add(2 * time.Minute)
	clockMu.Unlock()

	select {
	case ev := <-s.scanner.Events():
		s.Equal(EventExpired, ev.Type)
		s.Equal("C7:95:DA:5F:44:8A", ev.Peripheral.Address)
	case <-time.After(time.Second):
		s.Fail("expired event MUST be published")
	}
	s.Empty(s.scanner.Devices())
}

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}

func TestDeviceEventType_String(t *testing.T) {
	assert.Equal(t, "new", EventNew.String())
	assert.Equal(t, "expired", EventExpired.String())
	assert.Equal(t, "unknown", DeviceEventType(42).String())
}

func TestDefaultScanOptions(t *testing.T) {
	opts := DefaultScanOptions()
	require.NotNil(t, opts)
	assert.Equal(t, 10*time.Second, opts.Duration)
	assert.True(t, opts.DuplicateFilter)
}
