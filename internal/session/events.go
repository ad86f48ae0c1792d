package session

import (
	"sync"
	"time"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/protocol"
)

// Source tells listeners whether a measurement came off the hardware
// or from a simulated fallback generator feeding the same stream.
type Source string

const (
	SourceReal      Source = "real"
	SourceSimulated Source = "simulated"
)

// MeasurementEvent is the sole output channel of the core: one decoded
// measurement, fanned out to every registered listener.
type MeasurementEvent struct {
	Capability  catalog.Capability    `json:"capability"`
	Measurement *protocol.Measurement `json:"measurement"`
	Source      Source                `json:"source"`
	At          time.Time             `json:"at"`
}

// StateChange announces a session state transition.
type StateChange struct {
	From   State  `json:"from"`
	To     State  `json:"to"`
	Reason string `json:"reason,omitempty"`
}

const listenerBuffer = 128

// listenerRegistry fans events out to per-listener ring channels.
// Emission is fire-and-forget: a full listener buffer drops that
// listener's oldest event and never blocks the others.
type listenerRegistry struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]*RingChannel[MeasurementEvent]
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{listeners: make(map[int]*RingChannel[MeasurementEvent])}
}

func (r *listenerRegistry) add() (<-chan MeasurementEvent, func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	rc := NewRingChannel[MeasurementEvent](listenerBuffer)
	r.listeners[id] = rc
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if cur, ok := r.listeners[id]; ok {
			delete(r.listeners, id)
			cur.Close()
		}
		r.mu.Unlock()
	}
	return rc.C(), cancel
}

func (r *listenerRegistry) emit(ev MeasurementEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rc := range r.listeners {
		rc.ForceSend(ev)
	}
}

func (r *listenerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}
