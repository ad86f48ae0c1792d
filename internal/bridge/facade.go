// Package bridge is the in-process request/response surface consumed
// by presentation layers: thin calls mapping onto session and
// controller operations, plus a cache of the latest reading per
// capability.
package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/measure"
	"github.com/learnzy-life/daring-health-bridge/internal/protocol"
	"github.com/learnzy-life/daring-health-bridge/internal/session"
)

// Result is the uniform response shape of control operations.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusReport is the response of Status.
type StatusReport struct {
	Session   session.Status       `json:"session"`
	Measuring []catalog.Capability `json:"measuring,omitempty"`
}

const defaultHistorySize = 512

// Bridge caches measurement events and exposes the facade operations.
// All state is in-memory for the process lifetime.
type Bridge struct {
	sess   *session.Session
	ctrl   *measure.Controller
	logger *logrus.Logger

	history *History

	latestMu sync.RWMutex
	latest   map[catalog.Capability]*protocol.Measurement

	cancelListen func()
	done         chan struct{}
}

// New wires a bridge to a session and controller and starts consuming
// the event stream. Close releases the listener.
func New(sess *session.Session, ctrl *measure.Controller, logger *logrus.Logger) (*Bridge, error) {
	if logger == nil {
		logger = logrus.New()
	}

	history, err := NewHistory(defaultHistorySize)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		sess:    sess,
		ctrl:    ctrl,
		logger:  logger,
		history: history,
		latest:  make(map[catalog.Capability]*protocol.Measurement),
		done:    make(chan struct{}),
	}

	events, cancel := sess.Listen()
	b.cancelListen = cancel
	go b.consume(events)

	return b, nil
}

func (b *Bridge) consume(events <-chan session.MeasurementEvent) {
	defer close(b.done)
	for ev := range events {
		b.latestMu.Lock()
		b.latest[ev.Capability] = ev.Measurement
		b.latestMu.Unlock()
		b.history.Append(ev)
	}
}

// Close detaches the bridge from the event stream.
func (b *Bridge) Close() {
	if b.cancelListen != nil {
		b.cancelListen()
		b.cancelListen = nil
		<-b.done
	}
}

// Status reports the session snapshot and active measurements.
func (b *Bridge) Status() StatusReport {
	return StatusReport{
		Session:   b.sess.Snapshot(),
		Measuring: b.ctrl.Measuring(),
	}
}

// Latest returns the most recent cached measurement for a capability.
func (b *Bridge) Latest(cap catalog.Capability) (*protocol.Measurement, bool) {
	b.latestMu.RLock()
	defer b.latestMu.RUnlock()
	m, ok := b.latest[cap]
	return m, ok
}

// Named read endpoints, one per facade operation.

func (b *Bridge) HeartRate() (*protocol.Measurement, bool)   { return b.Latest(catalog.HeartRate) }
func (b *Bridge) HRV() (*protocol.Measurement, bool)         { return b.Latest(catalog.HRV) }
func (b *Bridge) Steps() (*protocol.Measurement, bool)       { return b.Latest(catalog.Steps) }
func (b *Bridge) Sleep() (*protocol.Measurement, bool)       { return b.Latest(catalog.Sleep) }
func (b *Bridge) Stress() (*protocol.Measurement, bool)      { return b.Latest(catalog.Stress) }
func (b *Bridge) BloodOxygen() (*protocol.Measurement, bool) { return b.Latest(catalog.BloodOxygen) }

// StartMeasuring starts a live measurement for the capability.
func (b *Bridge) StartMeasuring(cap catalog.Capability) Result {
	if err := b.ctrl.Start(cap); err != nil {
		return Result{Message: err.Error()}
	}
	return Result{Success: true, Message: fmt.Sprintf("measuring %s", cap)}
}

// StopMeasuring stops a live measurement for the capability.
func (b *Bridge) StopMeasuring(cap catalog.Capability) Result {
	if err := b.ctrl.Stop(cap); err != nil {
		return Result{Message: err.Error()}
	}
	return Result{Success: true, Message: fmt.Sprintf("stopped %s", cap)}
}

// SyncNow runs a sync pass and summarizes the report. Per-item
// failures do not fail the call; only a lost session does.
func (b *Bridge) SyncNow(ctx context.Context) Result {
	report, err := b.sess.Sync(ctx)
	if err != nil {
		return Result{Message: err.Error()}
	}

	if failed := report.Failed(); len(failed) > 0 {
		return Result{
			Success: true,
			Message: fmt.Sprintf("sync completed, %d item(s) skipped: %s", len(failed), strings.Join(failed, ", ")),
		}
	}
	return Result{Success: true, Message: "sync completed"}
}

// RecentEvents drains and returns the buffered event journal.
func (b *Bridge) RecentEvents() []session.MeasurementEvent {
	events, err := b.history.Drain()
	if err != nil {
		b.logger.WithField("error", err).Warn("Event history drain failed")
	}
	return events
}

// HistoryMetrics exposes journal counters for diagnostics.
func (b *Bridge) HistoryMetrics() HistoryMetrics {
	return b.history.Metrics()
}
