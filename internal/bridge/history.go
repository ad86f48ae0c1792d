package bridge

import (
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"

	"github.com/learnzy-life/daring-health-bridge/internal/session"
)

// HistoryMetrics provides lock-free counters for History.
type HistoryMetrics struct {
	Recorded    int64 // events appended
	Overwritten int64 // events lost to buffer overflow
}

// maxHistorySize guards against accidental misconfiguration.
const maxHistorySize uint32 = 1024 * 1024

// History is a bounded journal of measurement events. Appends never
// block and never fail: when the ring is full the oldest events are
// overwritten, counted in the metrics.
type History struct {
	buffer      mpmc.RichOverlappedRingBuffer[session.MeasurementEvent]
	recorded    int64
	overwritten int64
}

// NewHistory creates a journal holding up to size events.
func NewHistory(size uint32) (*History, error) {
	if size == 0 {
		return nil, fmt.Errorf("history size must be > 0")
	}
	if size > maxHistorySize {
		return nil, fmt.Errorf("history size %d exceeds maximum %d", size, maxHistorySize)
	}
	return &History{
		buffer: mpmc.NewOverlappedRingBuffer[session.MeasurementEvent](size),
	}, nil
}

// Append records one event, overwriting the oldest if the ring is full.
func (h *History) Append(ev session.MeasurementEvent) {
	overwrites, err := h.buffer.EnqueueM(ev)
	if err != nil {
		// Overlapped rings only error on internal corruption; surface
		// it loudly rather than silently losing events.
		panic(fmt.Sprintf("history: unexpected enqueue error: %v", err))
	}
	atomic.AddInt64(&h.recorded, 1)
	atomic.AddInt64(&h.overwritten, int64(overwrites))
}

// Drain removes and returns all buffered events, oldest first.
func (h *History) Drain() ([]session.MeasurementEvent, error) {
	var out []session.MeasurementEvent
	for !h.buffer.IsEmpty() {
		ev, err := h.buffer.Dequeue()
		if err != nil {
			return out, fmt.Errorf("history dequeue: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Metrics returns a snapshot of the journal counters.
func (h *History) Metrics() HistoryMetrics {
	return HistoryMetrics{
		Recorded:    atomic.LoadInt64(&h.recorded),
		Overwritten: atomic.LoadInt64(&h.overwritten),
	}
}
