package protocol_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/protocol"
)

func TestDecodeHeartRate(t *testing.T) {
	t.Run("8-bit value", func(t *testing.T) {
		m, err := protocol.DecodeHeartRate([]byte{0x00, 0x48})
		require.NoError(t, err)

		assert.Equal(t, catalog.HeartRate, m.Capability)
		assert.Equal(t, protocol.StatusCompleted, m.Status)
		assert.True(t, m.Real)
		require.NotNil(t, m.HeartRate)
		assert.Equal(t, 72, m.HeartRate.BPM)
		assert.Nil(t, m.HeartRate.ContactDetected)
		assert.Nil(t, m.HeartRate.EnergyExpended)
	})

	t.Run("16-bit value", func(t *testing.T) {
		m, err := protocol.DecodeHeartRate([]byte{0x01, 0x2c, 0x01})
		require.NoError(t, err)
		assert.Equal(t, 300, m.HeartRate.BPM)
	})

	t.Run("contact detected", func(t *testing.T) {
		m, err := protocol.DecodeHeartRate([]byte{0x06, 0x50})
		require.NoError(t, err)
		require.NotNil(t, m.HeartRate.ContactDetected)
		assert.True(t, *m.HeartRate.ContactDetected)
	})

	t.Run("contact supported but absent", func(t *testing.T) {
		m, err := protocol.DecodeHeartRate([]byte{0x02, 0x50})
		require.NoError(t, err)
		require.NotNil(t, m.HeartRate.ContactDetected)
		assert.False(t, *m.HeartRate.ContactDetected)
	})

	t.Run("energy expended", func(t *testing.T) {
		m, err := protocol.DecodeHeartRate([]byte{0x08, 0x50, 0xe8, 0x03})
		require.NoError(t, err)
		require.NotNil(t, m.HeartRate.EnergyExpended)
		assert.Equal(t, 1000, *m.HeartRate.EnergyExpended)
	})

	t.Run("empty buffer", func(t *testing.T) {
		_, err := protocol.DecodeHeartRate(nil)
		var decodeErr *protocol.DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, catalog.HeartRate, decodeErr.Capability)
	})

	t.Run("16-bit flagged but truncated", func(t *testing.T) {
		_, err := protocol.DecodeHeartRate([]byte{0x01, 0x48})
		var decodeErr *protocol.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})
}

// DecodeHRV must accept any buffer length without erroring; the
// firmware format varies across revisions.
func TestDecodeHRVIsTotal(t *testing.T) {
	for length := 0; length <= 16; length++ {
		buf := make([]byte, length)
		for i := range buf {
			buf[i] = byte(i + 1)
		}
		m, err := protocol.DecodeHRV(buf)
		require.NoError(t, err, "length %d must decode", length)
		require.NotNil(t, m.HRV)
	}
}

func TestDecodeHRVLayouts(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		status protocol.Status
		value  int
	}{
		{"status-only completed", []byte{0x01}, protocol.StatusCompleted, 0},
		{"status-only measuring", []byte{0x00}, protocol.StatusMeasuring, 0},
		{"status plus LE16 value", []byte{0x01, 0x32, 0x00}, protocol.StatusCompleted, 50},
		{"status plus LE16 value with trailing bytes", []byte{0x01, 0x32, 0x00, 0xff}, protocol.StatusCompleted, 50},
		{"bare LE16 value", []byte{0x40, 0x00}, protocol.StatusCompleted, 64},
		{"empty buffer is a measuring frame", nil, protocol.StatusMeasuring, 0},
		{"error status", []byte{0x02, 0x32, 0x00}, protocol.StatusError, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := protocol.DecodeHRV(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.status, m.Status)
			assert.Equal(t, tt.value, m.HRV.ValueMs)
		})
	}
}

func TestDecodeStress(t *testing.T) {
	t.Run("completed frame", func(t *testing.T) {
		m, err := protocol.DecodeStress([]byte{0x01, 0x4b})
		require.NoError(t, err)

		assert.Equal(t, protocol.StatusCompleted, m.Status)
		require.NotNil(t, m.Stress)
		assert.Equal(t, 75, m.Stress.Score)
		assert.Equal(t, protocol.StressHigh, m.Stress.Level)
	})

	t.Run("short buffer", func(t *testing.T) {
		_, err := protocol.DecodeStress([]byte{0x01})
		var decodeErr *protocol.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score int
		level protocol.StressLevel
	}{
		{0, protocol.StressLow},
		{29, protocol.StressLow},
		{30, protocol.StressMedium},
		{69, protocol.StressMedium},
		{70, protocol.StressHigh},
		{100, protocol.StressHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.level, protocol.LevelForScore(tt.score), "score %d", tt.score)
	}
}

func TestDecodeSteps(t *testing.T) {
	le32 := func(vals ...uint32) []byte {
		buf := make([]byte, 0, len(vals)*4)
		for _, v := range vals {
			buf = binary.LittleEndian.AppendUint32(buf, v)
		}
		return buf
	}

	t.Run("count only", func(t *testing.T) {
		m, err := protocol.DecodeSteps(le32(8421))
		require.NoError(t, err)

		assert.Equal(t, 8421, m.Steps.Count)
		assert.Nil(t, m.Steps.DistanceM)
		assert.Nil(t, m.Steps.Calories)
	})

	t.Run("count and distance", func(t *testing.T) {
		m, err := protocol.DecodeSteps(le32(8421, 6100))
		require.NoError(t, err)

		require.NotNil(t, m.Steps.DistanceM)
		assert.Equal(t, 6100, *m.Steps.DistanceM)
		assert.Nil(t, m.Steps.Calories)
	})

	t.Run("all fields", func(t *testing.T) {
		m, err := protocol.DecodeSteps(le32(8421, 6100, 320))
		require.NoError(t, err)

		require.NotNil(t, m.Steps.Calories)
		assert.Equal(t, 320, *m.Steps.Calories)
	})

	t.Run("short buffer", func(t *testing.T) {
		_, err := protocol.DecodeSteps([]byte{0x01, 0x02})
		var decodeErr *protocol.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})
}

func TestDecodeSleep(t *testing.T) {
	// Minutes on the wire: 450 total, 90 deep, 270 light, 60 REM, 30 awake.
	buf := make([]byte, 0, 20)
	for _, minutes := range []uint32{450, 90, 270, 60, 30} {
		buf = binary.LittleEndian.AppendUint32(buf, minutes)
	}

	m, err := protocol.DecodeSleep(buf)
	require.NoError(t, err)

	require.NotNil(t, m.Sleep)
	assert.InDelta(t, 7.5, m.Sleep.DurationH, 1e-9)
	assert.InDelta(t, 1.5, m.Sleep.DeepH, 1e-9)
	assert.InDelta(t, 4.5, m.Sleep.LightH, 1e-9)
	assert.InDelta(t, 1.0, m.Sleep.RemH, 1e-9)
	assert.InDelta(t, 0.5, m.Sleep.AwakeH, 1e-9)
}

func TestDecodeSleepShortBuffer(t *testing.T) {
	_, err := protocol.DecodeSleep(make([]byte, 19))
	var decodeErr *protocol.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestDecodeBloodOxygen(t *testing.T) {
	m, err := protocol.DecodeBloodOxygen([]byte{0x01, 0x62})
	require.NoError(t, err)

	assert.Equal(t, protocol.StatusCompleted, m.Status)
	require.NotNil(t, m.BloodOxygen)
	assert.Equal(t, 98, m.BloodOxygen.Percent)
}

func TestDecodeTemperature(t *testing.T) {
	t.Run("float32 LE value", func(t *testing.T) {
		buf := []byte{0x01, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(buf[1:], math.Float32bits(36.6))

		m, err := protocol.DecodeTemperature(buf)
		require.NoError(t, err)

		require.NotNil(t, m.Temperature)
		assert.InDelta(t, 36.6, m.Temperature.Celsius, 1e-4)
	})

	t.Run("rejects NaN", func(t *testing.T) {
		buf := []byte{0x01, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(buf[1:], math.Float32bits(float32(math.NaN())))

		_, err := protocol.DecodeTemperature(buf)
		var decodeErr *protocol.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})

	t.Run("short buffer", func(t *testing.T) {
		_, err := protocol.DecodeTemperature([]byte{0x01, 0x02})
		var decodeErr *protocol.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})
}

func TestDecodeBattery(t *testing.T) {
	m, err := protocol.DecodeBattery([]byte{87})
	require.NoError(t, err)
	assert.Equal(t, 87, m.Battery.Percent)

	_, err = protocol.DecodeBattery(nil)
	assert.Error(t, err)
}

func TestDecodeDeviceInfo(t *testing.T) {
	m, err := protocol.DecodeDeviceInfo([]byte("RY02_1.3.7\x00\x00"))
	require.NoError(t, err)
	assert.Equal(t, "RY02_1.3.7", m.DeviceInfo.Firmware)

	_, err = protocol.DecodeDeviceInfo(nil)
	assert.Error(t, err)
}

func TestDecodeStatusByte(t *testing.T) {
	// Shared status byte semantics: 0 measuring, 1 completed, else error.
	tests := []struct {
		b      byte
		status protocol.Status
	}{
		{0x00, protocol.StatusMeasuring},
		{0x01, protocol.StatusCompleted},
		{0x02, protocol.StatusError},
		{0xff, protocol.StatusError},
	}

	for _, tt := range tests {
		m, err := protocol.DecodeBloodOxygen([]byte{tt.b, 0x60})
		require.NoError(t, err)
		assert.Equal(t, tt.status, m.Status, "status byte 0x%02x", tt.b)
	}
}

func TestDecodeDispatch(t *testing.T) {
	t.Run("routes by capability", func(t *testing.T) {
		m, err := protocol.Decode(catalog.Battery, []byte{50})
		require.NoError(t, err)
		assert.Equal(t, catalog.Battery, m.Capability)
	})

	t.Run("unknown capability", func(t *testing.T) {
		_, err := protocol.Decode(catalog.Capability("glucose"), []byte{0x01})
		var unsupported *catalog.UnsupportedCapabilityError
		assert.ErrorAs(t, err, &unsupported)
	})
}
