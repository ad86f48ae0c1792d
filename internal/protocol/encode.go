package protocol

import (
	"fmt"
	"math"
	"time"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
)

// Command buffers are written verbatim to the control characteristic.
// All encoders are pure; none touches the transport.

// ValueOutOfRangeError is returned when a profile field does not fit
// the single unsigned byte the wire format allots to it.
type ValueOutOfRangeError struct {
	Field string
	Value float64
}

func (e *ValueOutOfRangeError) Error() string {
	return fmt.Sprintf("user profile field %q value %v does not fit in one byte (0-255)", e.Field, e.Value)
}

// EncodeStart returns the start-command buffer for a capability.
func EncodeStart(c catalog.Capability) ([]byte, error) {
	return encodeOpcode(c, catalog.ActionStart)
}

// EncodeStop returns the stop-command buffer for a capability.
func EncodeStop(c catalog.Capability) ([]byte, error) {
	return encodeOpcode(c, catalog.ActionStop)
}

// EncodeStartAlt returns the alternate start buffer for firmware that
// ignores the primary opcode pair, or nil if none is registered.
func EncodeStartAlt(c catalog.Capability) ([]byte, error) {
	code, err := catalog.ResolveCommand(c, catalog.ActionStart)
	if err != nil {
		return nil, err
	}
	if code.Alt == nil {
		return nil, nil
	}
	return []byte{code.Alt[0], code.Alt[1]}, nil
}

func encodeOpcode(c catalog.Capability, a catalog.Action) ([]byte, error) {
	code, err := catalog.ResolveCommand(c, a)
	if err != nil {
		return nil, err
	}
	return []byte{code.Opcode[0], code.Opcode[1]}, nil
}

// EncodeTimeSync produces the 9-byte time-sync buffer:
// [opcode, opcode, year lo, year hi, month, day, hour, minute, second].
// The year is split little-endian across two bytes; the remaining
// calendar fields pass through as single unsigned bytes.
func EncodeTimeSync(now time.Time) []byte {
	year := now.Year()
	return []byte{
		catalog.TimeSyncOpcode[0],
		catalog.TimeSyncOpcode[1],
		byte(year & 0xff),
		byte(year >> 8),
		byte(now.Month()),
		byte(now.Day()),
		byte(now.Hour()),
		byte(now.Minute()),
		byte(now.Second()),
	}
}

// DecodeTimeSync reverses EncodeTimeSync. It exists so the round-trip
// property is testable; the device never sends this buffer back.
func DecodeTimeSync(buf []byte) (time.Time, error) {
	if len(buf) != 9 {
		return time.Time{}, fmt.Errorf("time sync buffer must be 9 bytes, got %d", len(buf))
	}
	year := int(buf[2]) | int(buf[3])<<8
	return time.Date(year, time.Month(buf[4]), int(buf[5]), int(buf[6]), int(buf[7]), int(buf[8]), 0, time.UTC), nil
}

// UserProfile holds the profile fields the ring stores on-device.
type UserProfile struct {
	WeightKg     float64
	HeightCm     int
	Gender       int // 0 or 1, per the wire format
	AgeYears     int
	StepLengthCm int
}

// EncodeUserProfile produces the 7-byte profile buffer:
// [opcode, opcode, round(weight), height, gender, age, step length].
// The wire format truncates every field to one unsigned byte; rather
// than wrap silently, out-of-range values are rejected.
func EncodeUserProfile(p UserProfile) ([]byte, error) {
	weight := math.Round(p.WeightKg)
	if weight < 0 || weight > 255 {
		return nil, &ValueOutOfRangeError{Field: "weight_kg", Value: p.WeightKg}
	}
	if p.HeightCm < 0 || p.HeightCm > 255 {
		return nil, &ValueOutOfRangeError{Field: "height_cm", Value: float64(p.HeightCm)}
	}
	if p.Gender != 0 && p.Gender != 1 {
		return nil, &ValueOutOfRangeError{Field: "gender", Value: float64(p.Gender)}
	}
	if p.AgeYears < 0 || p.AgeYears > 255 {
		return nil, &ValueOutOfRangeError{Field: "age_years", Value: float64(p.AgeYears)}
	}
	if p.StepLengthCm < 0 || p.StepLengthCm > 255 {
		return nil, &ValueOutOfRangeError{Field: "step_length_cm", Value: float64(p.StepLengthCm)}
	}

	return []byte{
		catalog.UserProfileOpcode[0],
		catalog.UserProfileOpcode[1],
		byte(weight),
		byte(p.HeightCm),
		byte(p.Gender),
		byte(p.AgeYears),
		byte(p.StepLengthCm),
	}, nil
}

// EncodeTimingInterval produces the 3-byte periodic-measurement buffer:
// [opcode, opcode, interval minutes].
func EncodeTimingInterval(c catalog.Capability, intervalMinutes int) ([]byte, error) {
	if intervalMinutes < 0 || intervalMinutes > 255 {
		return nil, &ValueOutOfRangeError{Field: "interval_minutes", Value: float64(intervalMinutes)}
	}
	code, err := catalog.ResolveCommand(c, catalog.ActionEnableTiming)
	if err != nil {
		return nil, err
	}
	return []byte{code.Opcode[0], code.Opcode[1], byte(intervalMinutes)}, nil
}
