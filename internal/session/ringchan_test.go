package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannelForceSendNeverBlocks(t *testing.T) {
	rc := NewRingChannel[int](3)

	for i := 0; i < 10; i++ {
		rc.ForceSend(i)
	}

	assert.Equal(t, 3, rc.Len())

	// The oldest elements were discarded; the newest survive.
	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestRingChannelDropReporting(t *testing.T) {
	rc := NewRingChannel[string](2)

	assert.False(t, rc.ForceSend("a"))
	assert.False(t, rc.ForceSend("b"))
	assert.True(t, rc.ForceSend("c"), "third send into a full buffer drops the oldest")

	m := rc.Metrics()
	assert.Equal(t, int64(3), m.Written)
	assert.Equal(t, int64(1), m.Overwritten)
}

func TestRingChannelTryReceiveEmpty(t *testing.T) {
	rc := NewRingChannel[int](1)

	_, ok := rc.TryReceive()
	assert.False(t, ok)
}

func TestRingChannelClose(t *testing.T) {
	rc := NewRingChannel[int](2)
	rc.ForceSend(1)
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1}, got)
}

func TestRingChannelZeroCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { NewRingChannel[int](0) })
}

func TestListenerRegistryIsolation(t *testing.T) {
	r := newListenerRegistry()

	ch1, cancel1 := r.add()
	_, cancel2 := r.add()
	defer cancel2()

	assert.Equal(t, 2, r.len())

	r.emit(MeasurementEvent{})
	select {
	case <-ch1:
	default:
		t.Fatal("listener 1 should have received the event")
	}

	cancel1()
	assert.Equal(t, 1, r.len())
	// Emitting after a listener cancelled must not panic.
	r.emit(MeasurementEvent{})

	cancel1() // double cancel is a no-op
	assert.Equal(t, 1, r.len())
}
