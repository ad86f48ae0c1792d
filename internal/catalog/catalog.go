// Package catalog is the static wire-format registry for the ring:
// which GATT service/characteristic pair serves each capability, and
// which 2-byte opcode pair drives each command on the control channel.
package catalog

import (
	"fmt"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Capability identifies a logical health metric or device function.
type Capability string

const (
	HeartRate   Capability = "heart_rate"
	HRV         Capability = "hrv"
	Steps       Capability = "steps"
	Sleep       Capability = "sleep"
	Stress      Capability = "stress"
	BloodOxygen Capability = "blood_oxygen"
	Temperature Capability = "temperature"
	Battery     Capability = "battery"
	DeviceInfo  Capability = "device_info"
)

// Action selects which command opcode pair to resolve for a capability.
type Action int

const (
	ActionStart Action = iota
	ActionStop
	ActionEnableTiming
	ActionDisableTiming
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionEnableTiming:
		return "enable_timing"
	case ActionDisableTiming:
		return "disable_timing"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// UnsupportedCapabilityError is returned when no descriptor or command
// is registered for a capability/action pair.
type UnsupportedCapabilityError struct {
	Capability Capability
	Action     *Action // nil for descriptor lookups
}

func (e *UnsupportedCapabilityError) Error() string {
	if e.Action != nil {
		return fmt.Sprintf("unsupported capability %q for action %q", e.Capability, e.Action.String())
	}
	return fmt.Sprintf("unsupported capability %q", e.Capability)
}

// CommandCode is a fixed 2-byte opcode pair written to the control
// channel. Alt, when present, is an alternate pair for firmware
// revisions that do not honor the primary one.
type CommandCode struct {
	Opcode [2]byte
	Alt    *[2]byte
}

// ServiceDescriptor maps a capability to its GATT addresses.
// MeasurementChar is the nil UUID for read-only capabilities that have
// no live notification stream (sleep, steps, device_info).
type ServiceDescriptor struct {
	Capability      Capability
	Service         uuid.UUID
	MeasurementChar uuid.UUID
	ReadChar        uuid.UUID
	Notifiable      bool
}

// Vendor service and control-channel UUIDs (Nordic UART layout, as the
// ring firmware exposes them).
var (
	ControlService   = uuid.MustParse("6e40fff0-b5a3-f393-e0a9-e50e24dcca9e")
	ControlWriteChar = uuid.MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	ControlNotify    = uuid.MustParse("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
)

// Standard GATT services the ring implements verbatim.
var (
	heartRateService   = uuid.MustParse("0000180d-0000-1000-8000-00805f9b34fb")
	heartRateMeasure   = uuid.MustParse("00002a37-0000-1000-8000-00805f9b34fb")
	batteryService     = uuid.MustParse("0000180f-0000-1000-8000-00805f9b34fb")
	batteryLevelChar   = uuid.MustParse("00002a19-0000-1000-8000-00805f9b34fb")
	deviceInfoService  = uuid.MustParse("0000180a-0000-1000-8000-00805f9b34fb")
	deviceInfoFirmware = uuid.MustParse("00002a26-0000-1000-8000-00805f9b34fb")
)

// Vendor measurement service carrying HRV, stress, SpO2, temperature,
// steps and sleep notifications/reads.
var (
	vendorDataService = uuid.MustParse("de5bf728-d711-4e47-af26-65e3012a5dc7")
	hrvChar           = uuid.MustParse("de5bf730-d711-4e47-af26-65e3012a5dc7")
	stressChar        = uuid.MustParse("de5bf731-d711-4e47-af26-65e3012a5dc7")
	spo2Char          = uuid.MustParse("de5bf732-d711-4e47-af26-65e3012a5dc7")
	temperatureChar   = uuid.MustParse("de5bf733-d711-4e47-af26-65e3012a5dc7")
	stepsChar         = uuid.MustParse("de5bf734-d711-4e47-af26-65e3012a5dc7")
	sleepChar         = uuid.MustParse("de5bf735-d711-4e47-af26-65e3012a5dc7")
)

var descriptors = newDescriptorRegistry()

func newDescriptorRegistry() *orderedmap.OrderedMap[Capability, *ServiceDescriptor] {
	om := orderedmap.New[Capability, *ServiceDescriptor]()

	// Registration order is the canonical enumeration order used by
	// Capabilities() and by the session's best-effort sync pass.
	for _, d := range []*ServiceDescriptor{
		{Capability: HeartRate, Service: heartRateService, MeasurementChar: heartRateMeasure, Notifiable: true},
		{Capability: HRV, Service: vendorDataService, MeasurementChar: hrvChar, ReadChar: hrvChar, Notifiable: true},
		{Capability: Stress, Service: vendorDataService, MeasurementChar: stressChar, ReadChar: stressChar, Notifiable: true},
		{Capability: BloodOxygen, Service: vendorDataService, MeasurementChar: spo2Char, ReadChar: spo2Char, Notifiable: true},
		{Capability: Temperature, Service: vendorDataService, MeasurementChar: temperatureChar, ReadChar: temperatureChar, Notifiable: true},
		{Capability: Steps, Service: vendorDataService, ReadChar: stepsChar},
		{Capability: Sleep, Service: vendorDataService, ReadChar: sleepChar},
		{Capability: Battery, Service: batteryService, MeasurementChar: batteryLevelChar, ReadChar: batteryLevelChar, Notifiable: true},
		{Capability: DeviceInfo, Service: deviceInfoService, ReadChar: deviceInfoFirmware},
	} {
		om.Set(d.Capability, d)
	}
	return om
}

// commandKey keys the opcode table by capability and action.
type commandKey struct {
	cap    Capability
	action Action
}

func alt(a, b byte) *[2]byte {
	p := [2]byte{a, b}
	return &p
}

var commands = map[commandKey]CommandCode{
	{HeartRate, ActionStart}: {Opcode: [2]byte{0x16, 0x01}, Alt: alt(0x69, 0x01)},
	{HeartRate, ActionStop}:  {Opcode: [2]byte{0x16, 0x00}, Alt: alt(0x69, 0x00)},

	{HRV, ActionStart}: {Opcode: [2]byte{0x39, 0x01}},
	{HRV, ActionStop}:  {Opcode: [2]byte{0x39, 0x00}},

	{Stress, ActionStart}: {Opcode: [2]byte{0x36, 0x01}},
	{Stress, ActionStop}:  {Opcode: [2]byte{0x36, 0x00}},

	{BloodOxygen, ActionStart}: {Opcode: [2]byte{0x2a, 0x01}, Alt: alt(0x6a, 0x01)},
	{BloodOxygen, ActionStop}:  {Opcode: [2]byte{0x2a, 0x00}, Alt: alt(0x6a, 0x00)},

	{Temperature, ActionStart}: {Opcode: [2]byte{0x23, 0x01}},
	{Temperature, ActionStop}:  {Opcode: [2]byte{0x23, 0x00}},

	// Timed (periodic background) measurement windows.
	{HeartRate, ActionEnableTiming}:  {Opcode: [2]byte{0x16, 0x02}},
	{HeartRate, ActionDisableTiming}: {Opcode: [2]byte{0x16, 0x03}},
	{Stress, ActionEnableTiming}:     {Opcode: [2]byte{0x36, 0x02}},
	{Stress, ActionDisableTiming}:    {Opcode: [2]byte{0x36, 0x03}},
}

// Opcode pairs for parameterized control-channel buffers.
var (
	TimeSyncOpcode    = [2]byte{0x01, 0x00}
	UserProfileOpcode = [2]byte{0x0a, 0x00}
)

// Resolve returns the service descriptor for a capability.
func Resolve(c Capability) (*ServiceDescriptor, error) {
	d, ok := descriptors.Get(c)
	if !ok {
		return nil, &UnsupportedCapabilityError{Capability: c}
	}
	return d, nil
}

// ResolveCommand returns the opcode pair for a capability/action pair.
func ResolveCommand(c Capability, a Action) (CommandCode, error) {
	code, ok := commands[commandKey{c, a}]
	if !ok {
		action := a
		return CommandCode{}, &UnsupportedCapabilityError{Capability: c, Action: &action}
	}
	return code, nil
}

// Capabilities enumerates registered capabilities in registration order.
func Capabilities() []Capability {
	caps := make([]Capability, 0, descriptors.Len())
	for pair := descriptors.Oldest(); pair != nil; pair = pair.Next() {
		caps = append(caps, pair.Key)
	}
	return caps
}

// Readable enumerates capabilities that expose a readable characteristic,
// in registration order. These are the targets of a best-effort sync.
func Readable() []Capability {
	caps := make([]Capability, 0, descriptors.Len())
	for pair := descriptors.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.ReadChar != uuid.Nil {
			caps = append(caps, pair.Key)
		}
	}
	return caps
}

// IsValid reports whether c names a registered capability.
func IsValid(c Capability) bool {
	_, ok := descriptors.Get(c)
	return ok
}
