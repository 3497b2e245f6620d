// Package monitor drives one GATT session from connect to streaming
// notifications and back to idle.
//
// Every step is triggered by the confirmation of the previous one: the dial
// result starts profile discovery, discovery starts the first descriptor
// write, and each acknowledged write starts the next. All events are handled
// on a single dispatch goroutine and carry the generation of the session that
// produced them, so events arriving after a teardown are dropped.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/groutine"
	"github.com/srg/blemon/internal/looper"
	"github.com/srg/blemon/internal/reading"
)

// releaseTimeout bounds the platform calls made while tearing down.
const releaseTimeout = 5 * time.Second

// State is the sequencer state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateServiceDiscovery
	StateEnablingNotifications
	StateStreaming
	StateDisconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateServiceDiscovery:
		return "service-discovery"
	case StateEnablingNotifications:
		return "enabling-notifications"
	case StateStreaming:
		return "streaming"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Listener receives sequencer callbacks on the dispatch goroutine. Callbacks
// must not block and must not call Stop; use StopAsync instead.
type Listener interface {
	OnStateChanged(from, to State)
	OnReading(r reading.Reading)
	OnError(err error)
}

// ListenerFuncs adapts optional functions to Listener. Nil fields are no-ops.
type ListenerFuncs struct {
	StateChanged func(from, to State)
	Reading      func(r reading.Reading)
	Error        func(err error)
}

func (f ListenerFuncs) OnStateChanged(from, to State) {
	if f.StateChanged != nil {
		f.StateChanged(from, to)
	}
}

func (f ListenerFuncs) OnReading(r reading.Reading) {
	if f.Reading != nil {
		f.Reading(r)
	}
}

func (f ListenerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithForgetter sets the component used when Options.Forget is set.
func WithForgetter(f device.Forgetter) Option {
	return func(m *Monitor) { m.forgetter = f }
}

// WithStore publishes decoded readings into store.
func WithStore(store *reading.Store) Option {
	return func(m *Monitor) { m.store = store }
}

func WithListener(l Listener) Option {
	return func(m *Monitor) { m.listener = l }
}

// session is one Start..Idle cycle. Fields below cancel are owned by the
// dispatch goroutine.
type session struct {
	gen    uint64
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	idle   chan struct{}

	client        device.Client
	chars         []*device.Characteristic
	enabled       []*device.Characteristic
	cancelTimeout func() bool
	closing       bool
}

// Monitor is the connection sequencer. At most one connection handle exists
// at any time.
type Monitor struct {
	central   device.Central
	forgetter device.Forgetter
	store     *reading.Store
	listener  Listener
	logger    *logrus.Logger
	looper    *looper.Looper

	mu     sync.Mutex
	state  State
	active *session
	gen    uint64
}

// New creates an idle Monitor.
func New(central device.Central, logger *logrus.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	m := &Monitor{
		central:  central,
		logger:   logger,
		listener: ListenerFuncs{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = reading.NewStore()
	}
	m.looper = looper.New("monitor-dispatch", logger)
	return m
}

// Store returns the reading store the monitor publishes into.
func (m *Monitor) Store() *reading.Store {
	return m.store
}

// State returns the current sequencer state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins connecting to opts.Address and returns immediately. It fails
// with device.ErrAlreadyConnected unless the monitor is idle.
func (m *Monitor) Start(ctx context.Context, opts Options) error {
	opts.Targets = append([]Target(nil), opts.Targets...)
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.Forget && m.forgetter == nil {
		return fmt.Errorf("%w: forgetting pairing state is not available on this platform", device.ErrUnsupported)
	}

	m.mu.Lock()
	if m.active != nil {
		state := m.state
		m.mu.Unlock()
		return &device.ConnectionError{State: device.AlreadyConnected, Msg: fmt.Sprintf("monitor is %s", state)}
	}
	m.gen++
	sess := &session{gen: m.gen, opts: opts, idle: make(chan struct{})}
	sess.ctx, sess.cancel = context.WithCancel(ctx)
	m.active = sess
	m.mu.Unlock()

	if !m.looper.Post(func() { m.begin(sess) }) {
		m.mu.Lock()
		m.active = nil
		m.mu.Unlock()
		sess.cancel()
		return errors.New("monitor is closed")
	}
	return nil
}

// Stop tears the session down from whatever state it is in and waits until
// the monitor is idle again. Stopping an idle monitor does nothing.
func (m *Monitor) Stop() error {
	idle := m.StopAsync()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
	case <-m.looper.Done():
	}
	return nil
}

// StopAsync requests teardown without waiting. The returned channel, nil
// when idle, is closed once the monitor is idle.
func (m *Monitor) StopAsync() <-chan struct{} {
	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()
	if sess == nil {
		return nil
	}
	if !m.looper.Post(func() { m.teardown(sess, nil) }) {
		return nil
	}
	return sess.idle
}

// Close stops the session and the dispatch goroutine.
func (m *Monitor) Close() error {
	err := m.Stop()
	m.looper.Close()
	return err
}

// current reports whether sess is the live, not yet closing, session.
// Dispatch goroutine only.
func (m *Monitor) current(sess *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active == sess && !sess.closing
}

func (m *Monitor) setState(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()
	if from == to {
		return
	}
	m.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("Monitor state changed")
	m.listener.OnStateChanged(from, to)
}

// post runs fn on the dispatch goroutine if sess is still current then.
func (m *Monitor) post(sess *session, fn func()) {
	m.looper.Post(func() {
		if m.current(sess) {
			fn()
		}
	})
}

func (m *Monitor) begin(sess *session) {
	if !m.current(sess) {
		return
	}

	domains := make([]reading.Domain, 0, len(sess.opts.Targets)+1)
	for _, t := range sess.opts.Targets {
		if d, ok := device.CharacteristicDomain(t.Characteristic); ok {
			domains = append(domains, d)
		}
	}
	if sess.opts.ReadRSSI {
		domains = append(domains, reading.RSSI)
	}
	m.store.Declare(domains...)

	m.logger.WithFields(logrus.Fields{
		"address": sess.opts.Address,
		"targets": len(sess.opts.Targets),
		"gen":     sess.gen,
	}).Info("Connecting to peripheral...")
	m.setState(StateConnecting)

	if d := sess.opts.ConnectTimeout; d > 0 {
		sess.cancelTimeout = m.looper.PostDelayed(d, func() {
			if !m.current(sess) || m.State() != StateConnecting {
				return
			}
			m.fail(sess, fmt.Errorf("%w: connect to %s timed out after %s", device.ErrTimeout, sess.opts.Address, d))
		})
	}

	groutine.Go(sess.ctx, "ble-dial", func(ctx context.Context) {
		client, err := m.central.Dial(ctx, sess.opts.Address)
		m.looper.Post(func() { m.onDialResult(sess, client, err) })
	})
}

func (m *Monitor) onDialResult(sess *session, client device.Client, err error) {
	if !m.current(sess) {
		if client != nil {
			// Late dial of a torn down session: release the orphan so that
			// no second handle survives.
			m.logger.WithField("address", client.Address()).Debug("Releasing connection of a stopped session")
			groutine.Go(context.Background(), "ble-release-orphan", func(context.Context) {
				_ = client.CancelConnection()
			})
		}
		return
	}
	if sess.cancelTimeout != nil {
		sess.cancelTimeout()
	}
	if err != nil {
		m.fail(sess, err)
		return
	}

	sess.client = client
	m.logger.WithField("address", sess.opts.Address).Info("Connected")

	if done := client.Disconnected(); done != nil {
		groutine.Go(sess.ctx, "ble-disconnect-watch", func(ctx context.Context) {
			select {
			case <-done:
				m.post(sess, func() { m.onDisconnected(sess) })
			case <-ctx.Done():
			}
		})
	}

	m.setState(StateServiceDiscovery)
	groutine.Go(sess.ctx, "ble-discover", func(ctx context.Context) {
		profile, err := client.DiscoverProfile(ctx)
		m.post(sess, func() { m.onProfile(sess, profile, err) })
	})
}

func (m *Monitor) onProfile(sess *session, profile *device.Profile, err error) {
	if err != nil {
		m.fail(sess, fmt.Errorf("service discovery failed: %w", err))
		return
	}

	chars := make([]*device.Characteristic, 0, len(sess.opts.Targets))
	for _, t := range sess.opts.Targets {
		c, err := profile.FindCharacteristic(t.Service, t.Characteristic)
		if err != nil {
			m.fail(sess, err)
			return
		}
		chars = append(chars, c)
	}
	sess.chars = chars

	m.setState(StateEnablingNotifications)
	m.enableNext(sess)
}

// enableNext writes the descriptor of the first characteristic not yet
// enabled, or enters Streaming when all are.
func (m *Monitor) enableNext(sess *session) {
	if len(sess.enabled) == len(sess.chars) {
		m.logger.WithField("characteristics", len(sess.enabled)).Info("Notifications enabled, streaming")
		m.setState(StateStreaming)
		return
	}

	c := sess.chars[len(sess.enabled)]
	client := sess.client
	m.logger.WithFields(logrus.Fields{
		"service":        c.Service,
		"characteristic": c.UUID,
	}).Debug("Enabling notifications")

	groutine.Go(sess.ctx, "ble-enable-notify", func(ctx context.Context) {
		err := client.EnableNotifications(ctx, c, func(data []byte) {
			value := append([]byte(nil), data...)
			m.post(sess, func() { m.onNotification(sess, c, value) })
		})
		m.post(sess, func() { m.onDescriptorWritten(sess, c, err) })
	})
}

func (m *Monitor) onDescriptorWritten(sess *session, c *device.Characteristic, err error) {
	if err != nil {
		var dwe *device.DescriptorWriteError
		if !errors.As(err, &dwe) {
			err = &device.DescriptorWriteError{Service: c.Service, Characteristic: c.UUID, Err: err}
		}
		m.fail(sess, err)
		return
	}
	sess.enabled = append(sess.enabled, c)
	m.enableNext(sess)
}

func (m *Monitor) onNotification(sess *session, c *device.Characteristic, data []byte) {
	r, err := device.DecodeCharacteristic(c.UUID, data)
	if err != nil {
		m.logger.WithError(err).WithField("characteristic", c.UUID).Warn("Dropping malformed notification")
		return
	}
	if r == nil {
		return
	}
	m.publish(*r)

	if sess.opts.ReadRSSI {
		client := sess.client
		groutine.Go(sess.ctx, "ble-read-rssi", func(ctx context.Context) {
			rssi, err := client.ReadRSSI(ctx)
			m.post(sess, func() {
				if err != nil {
					m.logger.WithError(err).Debug("Reading remote RSSI failed")
					return
				}
				m.publish(device.RSSIReading(rssi))
			})
		})
	}
}

func (m *Monitor) publish(r reading.Reading) {
	m.store.Set(r)
	if stored, ok := m.store.Get(r.Domain); ok {
		r = stored
	}
	m.listener.OnReading(r)
}

func (m *Monitor) onDisconnected(sess *session) {
	m.fail(sess, &device.ConnectionError{
		State: device.NotConnected,
		Msg:   fmt.Sprintf("peripheral %s disconnected", sess.opts.Address),
	})
}

// fail reports err and tears the session down through the Error state.
func (m *Monitor) fail(sess *session, err error) {
	m.logger.WithError(err).WithField("address", sess.opts.Address).Error("Monitor session failed")
	m.listener.OnError(err)
	m.teardown(sess, err)
}

// teardown releases everything sess holds. Only the first call per session
// does anything; the handle is released exactly once.
func (m *Monitor) teardown(sess *session, cause error) {
	m.mu.Lock()
	if m.active != sess || sess.closing {
		m.mu.Unlock()
		return
	}
	sess.closing = true
	m.mu.Unlock()

	if sess.cancelTimeout != nil {
		sess.cancelTimeout()
	}
	sess.cancel()

	if cause != nil {
		m.setState(StateError)
	} else {
		m.setState(StateDisconnecting)
	}

	client := sess.client
	sess.client = nil
	enabled := sess.enabled
	sess.enabled = nil
	forget := sess.opts.Forget && m.forgetter != nil
	address := sess.opts.Address

	groutine.Go(context.Background(), "ble-release", func(context.Context) {
		if client != nil {
			for _, c := range enabled {
				if err := client.DisableNotifications(c); err != nil {
					m.logger.WithError(err).WithField("characteristic", c.UUID).Debug("Unsubscribe failed")
				}
			}
		}
		if forget {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			if err := m.forgetter.Forget(ctx, address); err != nil {
				m.logger.WithError(err).WithField("address", address).Warn("Failed to forget peripheral")
			}
			cancel()
		}
		if client != nil {
			if err := client.CancelConnection(); err != nil {
				m.logger.WithError(err).WithField("address", address).Warn("Failed to release connection")
			}
		}
		if !m.looper.Post(func() { m.onReleased(sess) }) {
			m.onReleased(sess)
		}
	})
}

func (m *Monitor) onReleased(sess *session) {
	m.mu.Lock()
	if m.active == sess {
		m.active = nil
	}
	m.mu.Unlock()

	m.store.Reset()
	m.setState(StateIdle)
	m.logger.WithField("address", sess.opts.Address).Info("Monitor idle")
	close(sess.idle)
}
