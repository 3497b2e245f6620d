package scanner

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/groutine"
	"github.com/srg/blemon/internal/looper"
)

// ErrScanInProgress is returned by Start while another scan is running.
var ErrScanInProgress = errors.New("scan already in progress")

// DeviceEventType marks if the device was newly discovered, updated or expired
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
	EventExpired
)

func (t DeviceEventType) String() string {
	switch t {
	case EventNew:
		return "new"
	case EventUpdated:
		return "updated"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

type DeviceEvent struct {
	Type       DeviceEventType
	Peripheral device.Peripheral
	At         time.Time
}

// Listener receives scan callbacks. All callbacks are delivered on the
// scanner's dispatch goroutine, one at a time.
type Listener interface {
	OnDeviceFound(p device.Peripheral)
	OnScanStatusChanged(scanning bool)
	OnScanFailed(err *device.ScanError)
	OnScanFinishedAutomatic()
}

// ListenerFuncs adapts optional functions to Listener. Nil fields are no-ops.
type ListenerFuncs struct {
	DeviceFound           func(p device.Peripheral)
	ScanStatusChanged     func(scanning bool)
	ScanFailed            func(err *device.ScanError)
	ScanFinishedAutomatic func()
}

func (f ListenerFuncs) OnDeviceFound(p device.Peripheral) {
	if f.DeviceFound != nil {
		f.DeviceFound(p)
	}
}

func (f ListenerFuncs) OnScanStatusChanged(scanning bool) {
	if f.ScanStatusChanged != nil {
		f.ScanStatusChanged(scanning)
	}
}

func (f ListenerFuncs) OnScanFailed(err *device.ScanError) {
	if f.ScanFailed != nil {
		f.ScanFailed(err)
	}
}

func (f ListenerFuncs) OnScanFinishedAutomatic() {
	if f.ScanFinishedAutomatic != nil {
		f.ScanFinishedAutomatic()
	}
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	// Duration stops the scan automatically; 0 scans until Stop.
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
	// ExpireAfter drops peripherals not heard from for this long; 0 keeps them.
	ExpireAfter     time.Duration
	CleanupInterval time.Duration
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
		CleanupInterval: time.Second,
	}
}

type stopReason int

const (
	stopExplicit stopReason = iota
	stopAutomatic
	stopFailed
	stopPlatform
)

// session is one Start..Stop cycle.
type session struct {
	opts     ScanOptions
	listener Listener
	allow    mapset.Set
	block    mapset.Set
	services mapset.Set

	cancel   context.CancelFunc
	autoStop func() bool
	done     chan struct{}
	err      *device.ScanError
}

// Scanner handles BLE device discovery
type Scanner struct {
	central device.Central
	logger  *logrus.Logger
	looper  *looper.Looper
	devices *hashmap.Map[string, *device.Peripheral]
	events  *ringChannel[DeviceEvent]
	now     func() time.Time

	mu      sync.Mutex
	current *session
}

// NewScanner creates a new BLE scanner on top of central
func NewScanner(central device.Central, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		central: central,
		logger:  logger,
		looper:  looper.New("scanner-dispatch", logger),
		devices: hashmap.New[string, *device.Peripheral](),
		events:  newRingChannel[DeviceEvent](100),
		now:     time.Now,
	}
}

// Start begins a scan and returns immediately. Results are delivered to
// listener and published on Events.
func (s *Scanner) Start(ctx context.Context, opts *ScanOptions, listener Listener) error {
	_, err := s.start(ctx, opts, listener)
	return err
}

func (s *Scanner) start(ctx context.Context, opts *ScanOptions, listener Listener) (*session, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if listener == nil {
		listener = ListenerFuncs{}
	}

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}

	scanCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		opts:     *opts,
		listener: listener,
		allow:    upperSet(opts.AllowList),
		block:    upperSet(opts.BlockList),
		services: mapset.NewSet(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, u := range device.NormalizeUUIDs(opts.ServiceUUIDs) {
		sess.services.Add(u)
	}
	s.current = sess
	s.devices.Range(func(addr string, _ *device.Peripheral) bool {
		s.devices.Del(addr)
		return true
	})

	s.looper.Post(func() { listener.OnScanStatusChanged(true) })
	if opts.Duration > 0 {
		sess.autoStop = s.looper.PostDelayed(opts.Duration, func() {
			s.finish(sess, stopAutomatic, nil)
		})
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"duration":   opts.Duration,
		"allow_list": len(opts.AllowList),
		"services":   opts.ServiceUUIDs,
	}).Info("Starting BLE scan...")

	if opts.ExpireAfter > 0 {
		interval := opts.CleanupInterval
		if interval <= 0 {
			interval = time.Second
		}
		groutine.Go(scanCtx, "scan-expiry", func(ctx context.Context) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.looper.Post(func() { s.expire(sess) })
				}
			}
		})
	}

	groutine.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		err := s.central.Scan(ctx, !opts.DuplicateFilter, func(adv device.Advertisement) {
			p := device.NewPeripheral(adv, s.now())
			s.looper.Post(func() { s.handlePeripheral(sess, &p) })
		})
		if err != nil {
			s.finish(sess, stopFailed, err)
			return
		}
		// The platform may end a scan on its own; a session still marked
		// current at this point was not stopped by us.
		s.finish(sess, stopPlatform, nil)
	})

	return sess, nil
}

// Stop ends the running scan. It is safe to call at any time and from
// listener callbacks; calls without a running scan do nothing.
func (s *Scanner) Stop() {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess != nil {
		s.finish(sess, stopExplicit, nil)
	}
}

// IsScanning reports whether a scan is running.
func (s *Scanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// finish detaches sess if it is still current and reports the end of the
// scan to its listener. Only the first caller for a session gets through.
func (s *Scanner) finish(sess *session, reason stopReason, cause error) {
	s.mu.Lock()
	if s.current != sess {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.mu.Unlock()

	sess.cancel()
	if sess.autoStop != nil {
		sess.autoStop()
	}

	if reason == stopFailed {
		serr, ok := device.AsScanError(cause)
		if !ok {
			serr = &device.ScanError{Code: device.ScanErrInternal, Err: cause}
		}
		sess.err = serr
		s.logger.WithError(serr).WithField("rate_limited", serr.IsRateLimited()).Error("BLE scan failed")
	}

	s.logger.WithFields(logrus.Fields{
		"device_count": s.devices.Len(),
		"automatic":    reason == stopAutomatic,
	}).Info("BLE scan stopped")

	notify := func() {
		defer close(sess.done)
		if sess.err != nil {
			sess.listener.OnScanFailed(sess.err)
		}
		sess.listener.OnScanStatusChanged(false)
		if reason == stopAutomatic {
			sess.listener.OnScanFinishedAutomatic()
		}
	}
	if !s.looper.Post(notify) {
		close(sess.done)
	}
}

func (s *Scanner) active(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == sess
}

// handlePeripheral filters p and records it. Runs on the looper.
func (s *Scanner) handlePeripheral(sess *session, p *device.Peripheral) {
	if !s.active(sess) || !sess.accepts(p) {
		return
	}

	prev, existing := s.devices.Get(p.Address)
	if existing && p.Name == "" {
		p.Name = prev.Name
	}
	s.devices.Set(p.Address, p)

	event := DeviceEvent{Type: EventNew, Peripheral: *p, At: p.LastSeen}
	if existing {
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  p.DisplayName(),
			"address": p.Address,
			"rssi":    p.RSSI,
		}).Info("Discovered new device")
	}

	s.events.Send(event)
	sess.listener.OnDeviceFound(*p)
}

// expire drops peripherals silent for longer than ExpireAfter. Runs on the looper.
func (s *Scanner) expire(sess *session) {
	if !s.active(sess) {
		return
	}
	cutoff := s.now().Add(-sess.opts.ExpireAfter)

	var stale []*device.Peripheral
	s.devices.Range(func(addr string, p *device.Peripheral) bool {
		if p.LastSeen.Before(cutoff) {
			stale = append(stale, p)
		}
		return true
	})

	for _, p := range stale {
		s.devices.Del(p.Address)
		s.logger.WithField("address", p.Address).Debug("Peripheral expired")
		s.events.Send(DeviceEvent{Type: EventExpired, Peripheral: *p, At: s.now()})
	}
}

// accepts applies block list, allow list and service filters, in that order.
func (sess *session) accepts(p *device.Peripheral) bool {
	if sess.block.Contains(p.Address) {
		return false
	}
	if sess.allow.Cardinality() > 0 && !sess.allow.Contains(p.Address) {
		return false
	}
	if sess.services.Cardinality() > 0 {
		for _, u := range p.Services {
			if sess.services.Contains(u) {
				return true
			}
		}
		return false
	}
	return true
}

func upperSet(addrs []string) mapset.Set {
	set := mapset.NewSet()
	for _, a := range addrs {
		if a = strings.TrimSpace(a); a != "" {
			set.Add(strings.ToUpper(a))
		}
	}
	return set
}

// Devices returns a snapshot of discovered peripherals sorted by address
func (s *Scanner) Devices() []device.Peripheral {
	devs := make([]device.Peripheral, 0, s.devices.Len())
	s.devices.Range(func(_ string, p *device.Peripheral) bool {
		devs = append(devs, *p)
		return true
	})
	sort.Slice(devs, func(i, j int) bool { return devs[i].Address < devs[j].Address })
	return devs
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// Scan runs a scan to completion: until the Duration elapses, ctx is
// cancelled or the platform fails. It returns the discovered peripherals.
// Cancellation of ctx is a normal way to end the scan and is not an error.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, listener Listener) ([]device.Peripheral, error) {
	sess, err := s.start(ctx, opts, listener)
	if err != nil {
		return nil, err
	}

	select {
	case <-sess.done:
	case <-ctx.Done():
		s.Stop()
		<-sess.done
	}

	if sess.err != nil {
		return s.Devices(), sess.err
	}
	return s.Devices(), nil
}

// Close stops any running scan and the dispatch goroutine.
func (s *Scanner) Close() {
	s.Stop()
	_ = s.looper.Sync(context.Background(), func() {})
	s.looper.Close()
}
