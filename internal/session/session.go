// Package session owns the single live ring connection: the scan →
// connect → subscribe → sync → disconnect lifecycle, and the fan-out
// of decoded measurements to listeners.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/device"
	"github.com/learnzy-life/daring-health-bridge/internal/protocol"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateScanning      State = "scanning"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

const stateChangeBuffer = 32

// Options configures a Session.
type Options struct {
	Scanner          device.Scanner
	TransportFactory func() device.Transport
	ConnectTimeout   time.Duration
	Logger           *logrus.Logger
}

// Session is the state machine owning the single active device
// connection. At most one peripheral is connected per process; the
// transport handle is never exposed outside this package.
type Session struct {
	logger           *logrus.Logger
	scanner          device.Scanner
	transportFactory func() device.Transport
	connectTimeout   time.Duration

	mu        sync.Mutex
	state     State
	transport device.Transport

	id         uuid.UUID
	deviceID   string
	deviceName string
	battery    *int
	lastSync   time.Time

	// armed notification subscriptions, keyed by capability
	subs map[catalog.Capability]bool

	// devices accumulated across scans, deduplicated by identity
	discovered      map[string]device.DeviceInfo
	discoveredOrder []string

	listeners    *listenerRegistry
	stateChanges *RingChannel[StateChange]

	lossMu       sync.Mutex
	lossHandlers []func()
}

// Status is a read-only snapshot of the session.
type Status struct {
	State      State                `json:"state"`
	SessionID  string               `json:"session_id,omitempty"`
	DeviceID   string               `json:"device_id,omitempty"`
	DeviceName string               `json:"device_name,omitempty"`
	Battery    *int                 `json:"battery,omitempty"`
	LastSync   *time.Time           `json:"last_sync,omitempty"`
	Armed      []catalog.Capability `json:"armed,omitempty"`
}

// New creates an idle session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Session{
		logger:           logger,
		scanner:          opts.Scanner,
		transportFactory: opts.TransportFactory,
		connectTimeout:   timeout,
		state:            StateIdle,
		subs:             make(map[catalog.Capability]bool),
		discovered:       make(map[string]device.DeviceInfo),
		listeners:        newListenerRegistry(),
		stateChanges:     NewRingChannel[StateChange](stateChangeBuffer),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setStateLocked transitions and announces. Caller holds s.mu.
func (s *Session) setStateLocked(to State, reason string) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.logger.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
	}).Debug("Session state change")
	s.stateChanges.ForceSend(StateChange{From: from, To: to, Reason: reason})
}

// StateChanges returns the stream of lifecycle transitions, including
// the link-loss fault edge.
func (s *Session) StateChanges() <-chan StateChange {
	return s.stateChanges.C()
}

// Listen registers a measurement listener. The returned cancel func
// must be called to release the listener's buffer.
func (s *Session) Listen() (<-chan MeasurementEvent, func()) {
	return s.listeners.add()
}

// Scan discovers nearby peripherals. Results are deduplicated by
// device identity and accumulate across repeated scans. Cancellation
// of ctx is a normal completion, not a fault.
func (s *Session) Scan(ctx context.Context, opts *device.ScanOptions) ([]device.DeviceInfo, error) {
	if s.scanner == nil {
		return nil, fmt.Errorf("%w: no scanner configured", device.ErrBluetoothUnavailable)
	}

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot scan while %s", state)
	}
	s.setStateLocked(StateScanning, "")
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.state == StateScanning {
			s.setStateLocked(StateIdle, "")
		}
		s.mu.Unlock()
	}()

	err := s.scanner.Scan(ctx, opts, func(info device.DeviceInfo) {
		s.mu.Lock()
		if _, seen := s.discovered[info.ID()]; !seen {
			s.discovered[info.ID()] = info
			s.discoveredOrder = append(s.discoveredOrder, info.ID())
		}
		s.mu.Unlock()
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	return s.DiscoveredDevices(), nil
}

// DiscoveredDevices returns every peripheral seen so far, in discovery
// order.
func (s *Session) DiscoveredDevices() []device.DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]device.DeviceInfo, 0, len(s.discoveredOrder))
	for _, id := range s.discoveredOrder {
		out = append(out, s.discovered[id])
	}
	return out
}

// Connect opens a session to the given peripheral. Only one connect
// may be in flight: a second call fails with AlreadyConnecting or
// AlreadyConnected. On success the battery level is read
// opportunistically; a failed battery read is non-fatal and leaves the
// level unset.
func (s *Session) Connect(ctx context.Context, handle device.DeviceInfo) error {
	if s.transportFactory == nil {
		return fmt.Errorf("%w: no transport configured", device.ErrBluetoothUnavailable)
	}

	s.mu.Lock()
	switch s.state {
	case StateConnecting:
		s.mu.Unlock()
		return device.ErrAlreadyConnecting
	case StateConnected, StateDisconnecting:
		s.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	s.setStateLocked(StateConnecting, "")
	transport := s.transportFactory()
	s.mu.Unlock()

	connCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	if err := transport.Connect(connCtx, handle.Address()); err != nil {
		s.mu.Lock()
		s.setStateLocked(StateIdle, "connect failed")
		s.mu.Unlock()
		return err
	}

	transport.SetDisconnectHandler(s.handleLinkLoss)

	s.mu.Lock()
	s.transport = transport
	s.id = uuid.New()
	s.deviceID = handle.ID()
	s.deviceName = handle.Name()
	s.battery = nil
	s.subs = make(map[catalog.Capability]bool)
	s.setStateLocked(StateConnected, "")
	s.lastSync = time.Now()
	s.mu.Unlock()

	s.refreshBattery(transport)

	s.logger.WithFields(logrus.Fields{
		"device":  handle.Name(),
		"address": handle.Address(),
	}).Info("Session established")
	return nil
}

// refreshBattery reads the battery characteristic. Failure degrades
// silently to an absent level; it is not an error and not retried.
func (s *Session) refreshBattery(transport device.Transport) {
	desc, err := catalog.Resolve(catalog.Battery)
	if err != nil {
		return
	}

	data, err := transport.Read(desc.Service.String(), desc.ReadChar.String())
	if err != nil {
		s.logger.WithField("error", err).Debug("Battery read failed, leaving level unset")
		return
	}
	m, err := protocol.DecodeBattery(data)
	if err != nil {
		s.logger.WithField("error", err).Debug("Battery payload undecodable, leaving level unset")
		return
	}

	level := m.Battery.Percent
	s.mu.Lock()
	s.battery = &level
	s.mu.Unlock()

	s.publish(m)
}

// Disconnect closes the active session. It is idempotent: with no
// active session it is a no-op, not an error. All subscriptions are
// released before the session reports idle.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(StateDisconnecting, "")
	transport := s.transport
	s.mu.Unlock()

	err := transport.Disconnect()

	s.mu.Lock()
	s.clearSessionLocked()
	s.setStateLocked(StateIdle, "")
	s.mu.Unlock()

	s.notifyLinkLossHandlers() // measuring flags must not survive the session
	return err
}

// handleLinkLoss is the transport's unsolicited-disconnect callback:
// it forces connected → idle and clears every subscription and
// measuring flag.
func (s *Session) handleLinkLoss() {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.clearSessionLocked()
	s.setStateLocked(StateIdle, "link lost")
	s.mu.Unlock()

	s.logger.Warn("Session lost: peripheral dropped the link")
	s.notifyLinkLossHandlers()
}

// clearSessionLocked resets per-session fields. Caller holds s.mu.
func (s *Session) clearSessionLocked() {
	s.transport = nil
	s.id = uuid.Nil
	s.deviceID = ""
	s.deviceName = ""
	s.battery = nil
	s.subs = make(map[catalog.Capability]bool)
}

// OnLinkLoss registers a callback invoked after the session has torn
// down, on both voluntary disconnect and link loss.
func (s *Session) OnLinkLoss(fn func()) {
	s.lossMu.Lock()
	s.lossHandlers = append(s.lossHandlers, fn)
	s.lossMu.Unlock()
}

func (s *Session) notifyLinkLossHandlers() {
	s.lossMu.Lock()
	handlers := make([]func(), len(s.lossHandlers))
	copy(handlers, s.lossHandlers)
	s.lossMu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// connectedTransport returns the live transport or ErrNotConnected.
func (s *Session) connectedTransport() (device.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.transport == nil {
		return nil, device.ErrNotConnected
	}
	return s.transport, nil
}

// WriteCommand writes an encoded command buffer to the control channel.
func (s *Session) WriteCommand(data []byte) error {
	transport, err := s.connectedTransport()
	if err != nil {
		return err
	}
	return transport.Write(catalog.ControlService.String(), catalog.ControlWriteChar.String(), data, false)
}

// SendProfile pushes the user profile to the ring over the control
// channel.
func (s *Session) SendProfile(p protocol.UserProfile) error {
	buf, err := protocol.EncodeUserProfile(p)
	if err != nil {
		return err
	}
	return s.WriteCommand(buf)
}

// Arm subscribes the capability's measurement characteristic and
// routes its notifications through the payload decoder.
func (s *Session) Arm(cap catalog.Capability) error {
	transport, err := s.connectedTransport()
	if err != nil {
		return err
	}

	desc, err := catalog.Resolve(cap)
	if err != nil {
		return err
	}
	if !desc.Notifiable {
		return fmt.Errorf("capability %q has no notification stream", cap)
	}

	s.mu.Lock()
	if s.subs[cap] {
		s.mu.Unlock()
		return fmt.Errorf("capability %q is already armed", cap)
	}
	s.mu.Unlock()

	err = transport.Subscribe(desc.Service.String(), desc.MeasurementChar.String(), func(data []byte) {
		s.handleNotification(cap, data)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.subs[cap] = true
	s.mu.Unlock()
	return nil
}

// Disarm unsubscribes the capability's measurement characteristic.
// Disarming a capability that is not armed is a no-op.
func (s *Session) Disarm(cap catalog.Capability) error {
	transport, err := s.connectedTransport()
	if err != nil {
		return err
	}

	s.mu.Lock()
	armed := s.subs[cap]
	delete(s.subs, cap)
	s.mu.Unlock()

	if !armed {
		return nil
	}

	desc, err := catalog.Resolve(cap)
	if err != nil {
		return err
	}
	return transport.Unsubscribe(desc.Service.String(), desc.MeasurementChar.String())
}

// IsArmed reports whether the capability's notifications are armed.
func (s *Session) IsArmed(cap catalog.Capability) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[cap]
}

// ReadCapability performs a one-shot read of a readable capability.
func (s *Session) ReadCapability(cap catalog.Capability) ([]byte, error) {
	transport, err := s.connectedTransport()
	if err != nil {
		return nil, err
	}

	desc, err := catalog.Resolve(cap)
	if err != nil {
		return nil, err
	}
	if desc.ReadChar == uuid.Nil {
		return nil, fmt.Errorf("capability %q is not readable", cap)
	}
	return transport.Read(desc.Service.String(), desc.ReadChar.String())
}

// handleNotification decodes one inbound payload and fans it out.
// Decode faults never tear the session down: the notification is
// logged and dropped.
func (s *Session) handleNotification(cap catalog.Capability, data []byte) {
	m, err := protocol.Decode(cap, data)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"capability": cap,
			"bytes":      len(data),
			"error":      err,
		}).Warn("Dropping undecodable notification")
		return
	}

	if cap == catalog.Battery && m.Battery != nil {
		level := m.Battery.Percent
		s.mu.Lock()
		s.battery = &level
		s.mu.Unlock()
	}

	s.publish(m)
}

func (s *Session) publish(m *protocol.Measurement) {
	s.listeners.emit(MeasurementEvent{
		Capability:  m.Capability,
		Measurement: m,
		Source:      SourceReal,
		At:          time.Now(),
	})
}

// PublishSimulated feeds a simulated measurement into the same event
// stream, tagged so listeners can tell it apart from hardware data.
// The core never generates simulated values itself.
func (s *Session) PublishSimulated(m *protocol.Measurement) {
	m.Real = false
	s.listeners.emit(MeasurementEvent{
		Capability:  m.Capability,
		Measurement: m,
		Source:      SourceSimulated,
		At:          time.Now(),
	})
}

// Snapshot returns the session status for read endpoints.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:      s.state,
		DeviceID:   s.deviceID,
		DeviceName: s.deviceName,
		Battery:    s.battery,
	}
	if s.id != uuid.Nil {
		st.SessionID = s.id.String()
	}
	if !s.lastSync.IsZero() {
		t := s.lastSync
		st.LastSync = &t
	}
	for cap, armed := range s.subs {
		if armed {
			st.Armed = append(st.Armed, cap)
		}
	}
	return st
}

// LastSync returns the time of the last successful sync or connect.
func (s *Session) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}
