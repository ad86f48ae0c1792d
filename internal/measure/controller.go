// Package measure orchestrates per-capability start/stop of live
// measurements on top of the session layer.
package measure

import (
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/protocol"
	"github.com/learnzy-life/daring-health-bridge/internal/session"
)

// MeasurementUnavailableError means this device/session cannot serve
// the capability. Recoverable: callers typically fall back to a
// simulated generator upstream.
type MeasurementUnavailableError struct {
	Capability catalog.Capability
	Cause      error
}

func (e *MeasurementUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("measurement unavailable for %s: %v", e.Capability, e.Cause)
	}
	return fmt.Sprintf("measurement unavailable for %s", e.Capability)
}

func (e *MeasurementUnavailableError) Unwrap() error {
	return e.Cause
}

// capabilityState serializes start/stop for one capability and tracks
// its measuring flag. Different capabilities proceed concurrently;
// they touch independent characteristics.
type capabilityState struct {
	mu        sync.Mutex
	measuring bool
}

// Controller drives per-capability measurement lifecycles. It borrows
// the session's transport per operation and never holds it across
// calls.
type Controller struct {
	sess   *session.Session
	logger *logrus.Logger
	states *hashmap.Map[catalog.Capability, *capabilityState]
}

// NewController creates a controller bound to a session. The session's
// teardown path clears every measuring flag so a link loss cannot
// strand a capability in "measuring".
func NewController(sess *session.Session, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Controller{
		sess:   sess,
		logger: logger,
		states: hashmap.New[catalog.Capability, *capabilityState](),
	}
	sess.OnLinkLoss(c.clearAll)
	return c
}

func (c *Controller) state(cap catalog.Capability) *capabilityState {
	st, _ := c.states.GetOrInsert(cap, &capabilityState{})
	return st
}

// Start arms the capability's notification stream and issues the start
// command. The measuring flag is set only after both the subscription
// and the command write succeed; on any failure nothing stays armed,
// so a retry behaves exactly like a first attempt.
func (c *Controller) Start(cap catalog.Capability) error {
	if !catalog.IsValid(cap) {
		return &catalog.UnsupportedCapabilityError{Capability: cap}
	}

	st := c.state(cap)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.measuring {
		return nil
	}

	if err := c.sess.Arm(cap); err != nil {
		return &MeasurementUnavailableError{Capability: cap, Cause: err}
	}

	if err := c.writeStart(cap); err != nil {
		// Roll back the half-armed subscription before reporting.
		if derr := c.sess.Disarm(cap); derr != nil {
			c.logger.WithFields(logrus.Fields{
				"capability": cap,
				"error":      derr,
			}).Warn("Failed to disarm after start-command failure")
		}
		return &MeasurementUnavailableError{Capability: cap, Cause: err}
	}

	st.measuring = true
	c.logger.WithField("capability", cap).Info("Measurement started")
	return nil
}

// writeStart issues the primary start opcode, falling back to the
// alternate pair for firmware that ignores the primary one.
func (c *Controller) writeStart(cap catalog.Capability) error {
	buf, err := protocol.EncodeStart(cap)
	if err != nil {
		return err
	}
	err = c.sess.WriteCommand(buf)
	if err == nil {
		return nil
	}

	altBuf, altErr := protocol.EncodeStartAlt(cap)
	if altErr != nil || altBuf == nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"capability": cap,
		"error":      err,
	}).Debug("Primary start opcode rejected, trying alternate")
	return c.sess.WriteCommand(altBuf)
}

// Stop issues the stop command and disarms the subscription. The
// measuring flag clears unconditionally once Stop is invoked, even if
// a step fails, so a flaky unsubscribe can never strand the capability
// in "measuring"; step failures are reported but not fatal.
func (c *Controller) Stop(cap catalog.Capability) error {
	if !catalog.IsValid(cap) {
		return &catalog.UnsupportedCapabilityError{Capability: cap}
	}

	st := c.state(cap)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.measuring = false

	var firstErr error

	if buf, err := protocol.EncodeStop(cap); err != nil {
		firstErr = err
	} else if err := c.sess.WriteCommand(buf); err != nil {
		firstErr = err
	}

	if err := c.sess.Disarm(cap); err != nil {
		c.logger.WithFields(logrus.Fields{
			"capability": cap,
			"error":      err,
		}).Warn("Unsubscribe failed during stop")
		if firstErr == nil {
			firstErr = err
		}
	}

	c.logger.WithField("capability", cap).Info("Measurement stopped")
	return firstErr
}

// IsMeasuring reports whether the capability is actively measuring.
func (c *Controller) IsMeasuring(cap catalog.Capability) bool {
	st, ok := c.states.Get(cap)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.measuring
}

// Measuring lists capabilities whose measuring flag is set.
func (c *Controller) Measuring() []catalog.Capability {
	var out []catalog.Capability
	c.states.Range(func(cap catalog.Capability, st *capabilityState) bool {
		st.mu.Lock()
		if st.measuring {
			out = append(out, cap)
		}
		st.mu.Unlock()
		return true
	})
	return out
}

// SetTimingInterval enables periodic background measurement on the
// device, e.g. a stress reading every N minutes.
func (c *Controller) SetTimingInterval(cap catalog.Capability, minutes int) error {
	buf, err := protocol.EncodeTimingInterval(cap, minutes)
	if err != nil {
		return err
	}
	return c.sess.WriteCommand(buf)
}

// clearAll drops every measuring flag. Invoked on session teardown;
// the subscriptions themselves died with the transport.
func (c *Controller) clearAll() {
	c.states.Range(func(cap catalog.Capability, st *capabilityState) bool {
		st.mu.Lock()
		if st.measuring {
			c.logger.WithField("capability", cap).Debug("Clearing measuring flag on session teardown")
			st.measuring = false
		}
		st.mu.Unlock()
		return true
	})
}
