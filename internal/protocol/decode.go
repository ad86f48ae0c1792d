package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
)

// DecodeError marks a payload that cannot be interpreted for its
// capability. The session logs it and drops the notification; it never
// tears down the connection.
type DecodeError struct {
	Capability catalog.Capability
	Reason     string
	Length     int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s payload (%d bytes): %s", e.Capability, e.Length, e.Reason)
}

func decodeErr(c catalog.Capability, data []byte, reason string) *DecodeError {
	return &DecodeError{Capability: c, Reason: reason, Length: len(data)}
}

// Decode dispatches a raw notification or read buffer to the decoder
// for its capability. The returned measurement is tagged Real: values
// arriving here came off the hardware.
func Decode(c catalog.Capability, data []byte) (*Measurement, error) {
	switch c {
	case catalog.HeartRate:
		return DecodeHeartRate(data)
	case catalog.HRV:
		return DecodeHRV(data)
	case catalog.Steps:
		return DecodeSteps(data)
	case catalog.Sleep:
		return DecodeSleep(data)
	case catalog.Stress:
		return DecodeStress(data)
	case catalog.BloodOxygen:
		return DecodeBloodOxygen(data)
	case catalog.Temperature:
		return DecodeTemperature(data)
	case catalog.Battery:
		return DecodeBattery(data)
	case catalog.DeviceInfo:
		return DecodeDeviceInfo(data)
	default:
		return nil, &catalog.UnsupportedCapabilityError{Capability: c}
	}
}

// Heart-rate measurement flag bits (Bluetooth SIG 0x2A37 layout).
const (
	hrFlagFormat16       = 1 << 0 // value is uint16 LE instead of uint8
	hrFlagContactPresent = 1 << 1
	hrFlagContactValue   = 1 << 2
	hrFlagEnergyPresent  = 1 << 3
)

// DecodeHeartRate decodes the standard heart-rate measurement
// characteristic: a flags byte, then an 8- or 16-bit value, optionally
// followed by a 16-bit energy-expended field.
func DecodeHeartRate(data []byte) (*Measurement, error) {
	if len(data) < 2 {
		return nil, decodeErr(catalog.HeartRate, data, "need flags byte and at least one value byte")
	}

	flags := data[0]
	offset := 1

	var bpm int
	if flags&hrFlagFormat16 != 0 {
		if len(data) < offset+2 {
			return nil, decodeErr(catalog.HeartRate, data, "16-bit format flagged but value truncated")
		}
		bpm = int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	} else {
		bpm = int(data[offset])
		offset++
	}

	reading := &HeartRateReading{BPM: bpm}

	if flags&hrFlagContactPresent != 0 {
		contact := flags&hrFlagContactValue != 0
		reading.ContactDetected = &contact
	}

	if flags&hrFlagEnergyPresent != 0 && len(data) >= offset+2 {
		energy := int(binary.LittleEndian.Uint16(data[offset:]))
		reading.EnergyExpended = &energy
	}

	return &Measurement{
		Capability: catalog.HeartRate,
		Status:     StatusCompleted,
		Real:       true,
		HeartRate:  reading,
	}, nil
}

// DecodeHRV decodes the HRV channel. The format differs across
// observed firmware revisions, so candidate layouts are tried in order
// by buffer length:
//
//  1. exactly 1 byte: status-only frame, value 0
//  2. 3 or more bytes: [status, value LE16]
//  3. exactly 2 bytes: [value LE16], status implicitly completed
//
// Anything else decodes as a zero-value measuring frame. DecodeHRV is
// total: it never returns an error.
func DecodeHRV(data []byte) (*Measurement, error) {
	m := &Measurement{
		Capability: catalog.HRV,
		Real:       true,
		HRV:        &HRVReading{},
	}

	switch {
	case len(data) == 1:
		if data[0] == 1 {
			m.Status = StatusCompleted
		} else {
			m.Status = StatusMeasuring
		}
	case len(data) >= 3:
		m.Status = statusFromByte(data[0])
		m.HRV.ValueMs = int(binary.LittleEndian.Uint16(data[1:3]))
	case len(data) == 2:
		m.Status = StatusCompleted
		m.HRV.ValueMs = int(binary.LittleEndian.Uint16(data))
	default:
		m.Status = StatusMeasuring
	}

	return m, nil
}

// DecodeSteps decodes the step counter: a required LE32 count, then
// optional LE32 distance (meters) and calories fields if the buffer is
// long enough. Absent trailing fields stay nil rather than zero.
func DecodeSteps(data []byte) (*Measurement, error) {
	if len(data) < 4 {
		return nil, decodeErr(catalog.Steps, data, "step count requires 4 bytes")
	}

	reading := &StepsReading{Count: int(binary.LittleEndian.Uint32(data))}
	if len(data) >= 8 {
		distance := int(binary.LittleEndian.Uint32(data[4:]))
		reading.DistanceM = &distance
	}
	if len(data) >= 12 {
		calories := int(binary.LittleEndian.Uint32(data[8:]))
		reading.Calories = &calories
	}

	return &Measurement{
		Capability: catalog.Steps,
		Status:     StatusCompleted,
		Real:       true,
		Steps:      reading,
	}, nil
}

// DecodeSleep decodes five LE32 fields in fixed order: total duration,
// deep, light, REM, awake. Fields are minutes on the wire and divide
// by 60 to hours. That unit is a firmware-format assumption: one
// observed app revision treated the same fields as float seconds over
// 3600, which this decoder deliberately does not do.
func DecodeSleep(data []byte) (*Measurement, error) {
	if len(data) < 20 {
		return nil, decodeErr(catalog.Sleep, data, "sleep summary requires 20 bytes")
	}

	hours := func(i int) float64 {
		return float64(binary.LittleEndian.Uint32(data[i*4:])) / 60.0
	}

	return &Measurement{
		Capability: catalog.Sleep,
		Status:     StatusCompleted,
		Real:       true,
		Sleep: &SleepReading{
			DurationH: hours(0),
			DeepH:     hours(1),
			LightH:    hours(2),
			RemH:      hours(3),
			AwakeH:    hours(4),
		},
	}, nil
}

// DecodeStress decodes [status, score]. The sensor clamps scores to
// 0-100 in practice; the byte is taken as-is.
func DecodeStress(data []byte) (*Measurement, error) {
	if len(data) < 2 {
		return nil, decodeErr(catalog.Stress, data, "stress frame requires status and score bytes")
	}

	score := int(data[1])
	return &Measurement{
		Capability: catalog.Stress,
		Status:     statusFromByte(data[0]),
		Real:       true,
		Stress: &StressReading{
			Score: score,
			Level: LevelForScore(score),
		},
	}, nil
}

// DecodeBloodOxygen decodes [status, percent].
func DecodeBloodOxygen(data []byte) (*Measurement, error) {
	if len(data) < 2 {
		return nil, decodeErr(catalog.BloodOxygen, data, "blood oxygen frame requires status and value bytes")
	}

	return &Measurement{
		Capability:  catalog.BloodOxygen,
		Status:      statusFromByte(data[0]),
		Real:        true,
		BloodOxygen: &BloodOxygenReading{Percent: int(data[1])},
	}, nil
}

// DecodeTemperature decodes [status, float32 LE Celsius].
func DecodeTemperature(data []byte) (*Measurement, error) {
	if len(data) < 5 {
		return nil, decodeErr(catalog.Temperature, data, "temperature frame requires status byte and float32 value")
	}

	bits := binary.LittleEndian.Uint32(data[1:5])
	celsius := float64(math.Float32frombits(bits))
	if math.IsNaN(celsius) || math.IsInf(celsius, 0) {
		return nil, decodeErr(catalog.Temperature, data, "temperature value is not a finite number")
	}

	return &Measurement{
		Capability:  catalog.Temperature,
		Status:      statusFromByte(data[0]),
		Real:        true,
		Temperature: &TemperatureReading{Celsius: celsius},
	}, nil
}

// DecodeBattery decodes the standard battery-level characteristic: one
// byte, 0-100 percent.
func DecodeBattery(data []byte) (*Measurement, error) {
	if len(data) < 1 {
		return nil, decodeErr(catalog.Battery, data, "battery level requires one byte")
	}

	return &Measurement{
		Capability: catalog.Battery,
		Status:     StatusCompleted,
		Real:       true,
		Battery:    &BatteryReading{Percent: int(data[0])},
	}, nil
}

// DecodeDeviceInfo decodes a device-information string characteristic.
func DecodeDeviceInfo(data []byte) (*Measurement, error) {
	if len(data) == 0 {
		return nil, decodeErr(catalog.DeviceInfo, data, "empty device info value")
	}

	return &Measurement{
		Capability: catalog.DeviceInfo,
		Status:     StatusCompleted,
		Real:       true,
		DeviceInfo: &DeviceInfoReading{Firmware: strings.TrimRight(string(data), "\x00")},
	}, nil
}
