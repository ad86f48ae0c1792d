package protocol

import (
	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
)

// Status is the tri-state completion marker carried by every decoded
// payload: an in-progress reading, a final reading, or a sensor error.
type Status string

const (
	StatusMeasuring Status = "measuring"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// statusFromByte maps the firmware status byte shared by the HRV,
// stress, blood-oxygen and temperature channels.
func statusFromByte(b byte) Status {
	switch b {
	case 0:
		return StatusMeasuring
	case 1:
		return StatusCompleted
	default:
		return StatusError
	}
}

// HeartRateReading is a decoded standard heart-rate measurement.
type HeartRateReading struct {
	BPM             int   `json:"bpm"`
	ContactDetected *bool `json:"contact_detected,omitempty"`
	EnergyExpended  *int  `json:"energy_expended,omitempty"`
}

// HRVReading carries heart-rate variability in milliseconds.
type HRVReading struct {
	ValueMs int `json:"value_ms"`
}

// StepsReading carries the daily step counter. Distance and calories
// are trailing optional fields; nil means the firmware omitted them.
type StepsReading struct {
	Count     int  `json:"count"`
	DistanceM *int `json:"distance_m,omitempty"`
	Calories  *int `json:"calories,omitempty"`
}

// SleepReading carries last-night sleep phases, in hours.
type SleepReading struct {
	DurationH float64 `json:"duration_h"`
	DeepH     float64 `json:"deep_h"`
	LightH    float64 `json:"light_h"`
	RemH      float64 `json:"rem_h"`
	AwakeH    float64 `json:"awake_h"`
}

// StressLevel buckets a stress score.
type StressLevel string

const (
	StressLow    StressLevel = "low"
	StressMedium StressLevel = "medium"
	StressHigh   StressLevel = "high"
)

// LevelForScore maps a stress score to its bucket:
// <30 low, 30-69 medium, >=70 high.
func LevelForScore(score int) StressLevel {
	switch {
	case score < 30:
		return StressLow
	case score < 70:
		return StressMedium
	default:
		return StressHigh
	}
}

// StressReading carries a 0-100 stress score and its derived level.
type StressReading struct {
	Score int         `json:"score"`
	Level StressLevel `json:"level"`
}

// BloodOxygenReading carries SpO2 as a percentage.
type BloodOxygenReading struct {
	Percent int `json:"percent"`
}

// TemperatureReading carries skin temperature in Celsius.
type TemperatureReading struct {
	Celsius float64 `json:"celsius"`
}

// BatteryReading carries the battery level as a percentage.
type BatteryReading struct {
	Percent int `json:"percent"`
}

// DeviceInfoReading carries identity strings read from the standard
// device-information service.
type DeviceInfoReading struct {
	Firmware string `json:"firmware"`
}

// Measurement is the decoded form of one device payload. Exactly one
// variant pointer is set, matching Capability. Real is false for values
// injected by a simulated fallback source rather than hardware.
type Measurement struct {
	Capability catalog.Capability `json:"capability"`
	Status     Status             `json:"status"`
	Real       bool               `json:"real"`

	HeartRate   *HeartRateReading   `json:"heart_rate,omitempty"`
	HRV         *HRVReading         `json:"hrv,omitempty"`
	Steps       *StepsReading       `json:"steps,omitempty"`
	Sleep       *SleepReading       `json:"sleep,omitempty"`
	Stress      *StressReading      `json:"stress,omitempty"`
	BloodOxygen *BloodOxygenReading `json:"blood_oxygen,omitempty"`
	Temperature *TemperatureReading `json:"temperature,omitempty"`
	Battery     *BatteryReading     `json:"battery,omitempty"`
	DeviceInfo  *DeviceInfoReading  `json:"device_info,omitempty"`
}
