package catalog_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		capability catalog.Capability
		service    string
		notifiable bool
		readable   bool
	}{
		{
			name:       "heart rate uses the standard GATT service",
			capability: catalog.HeartRate,
			service:    "0000180d-0000-1000-8000-00805f9b34fb",
			notifiable: true,
			readable:   false,
		},
		{
			name:       "hrv lives on the vendor data service",
			capability: catalog.HRV,
			service:    "de5bf728-d711-4e47-af26-65e3012a5dc7",
			notifiable: true,
			readable:   true,
		},
		{
			name:       "sleep is read-only",
			capability: catalog.Sleep,
			service:    "de5bf728-d711-4e47-af26-65e3012a5dc7",
			notifiable: false,
			readable:   true,
		},
		{
			name:       "battery uses the standard GATT service",
			capability: catalog.Battery,
			service:    "0000180f-0000-1000-8000-00805f9b34fb",
			notifiable: true,
			readable:   true,
		},
		{
			name:       "device info is read-only",
			capability: catalog.DeviceInfo,
			service:    "0000180a-0000-1000-8000-00805f9b34fb",
			notifiable: false,
			readable:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := catalog.Resolve(tt.capability)
			require.NoError(t, err)

			assert.Equal(t, tt.capability, desc.Capability)
			assert.Equal(t, tt.service, desc.Service.String())
			assert.Equal(t, tt.notifiable, desc.Notifiable)
			assert.Equal(t, tt.readable, desc.ReadChar != uuid.Nil)
			if tt.notifiable {
				assert.NotEqual(t, uuid.Nil, desc.MeasurementChar)
			}
		})
	}
}

func TestResolveUnknownCapability(t *testing.T) {
	_, err := catalog.Resolve(catalog.Capability("blood_pressure"))
	require.Error(t, err)

	var unsupported *catalog.UnsupportedCapabilityError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, catalog.Capability("blood_pressure"), unsupported.Capability)
	assert.Nil(t, unsupported.Action)
}

func TestResolveCommand(t *testing.T) {
	tests := []struct {
		name       string
		capability catalog.Capability
		action     catalog.Action
		opcode     [2]byte
		alt        *[2]byte
	}{
		{
			name:       "heart rate start has an alternate pair",
			capability: catalog.HeartRate,
			action:     catalog.ActionStart,
			opcode:     [2]byte{0x16, 0x01},
			alt:        &[2]byte{0x69, 0x01},
		},
		{
			name:       "heart rate stop has an alternate pair",
			capability: catalog.HeartRate,
			action:     catalog.ActionStop,
			opcode:     [2]byte{0x16, 0x00},
			alt:        &[2]byte{0x69, 0x00},
		},
		{
			name:       "blood oxygen start has an alternate pair",
			capability: catalog.BloodOxygen,
			action:     catalog.ActionStart,
			opcode:     [2]byte{0x2a, 0x01},
			alt:        &[2]byte{0x6a, 0x01},
		},
		{
			name:       "hrv start has no alternate",
			capability: catalog.HRV,
			action:     catalog.ActionStart,
			opcode:     [2]byte{0x39, 0x01},
		},
		{
			name:       "stress timing window",
			capability: catalog.Stress,
			action:     catalog.ActionEnableTiming,
			opcode:     [2]byte{0x36, 0x02},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := catalog.ResolveCommand(tt.capability, tt.action)
			require.NoError(t, err)

			assert.Equal(t, tt.opcode, code.Opcode)
			if tt.alt != nil {
				require.NotNil(t, code.Alt)
				assert.Equal(t, *tt.alt, *code.Alt)
			} else {
				assert.Nil(t, code.Alt)
			}
		})
	}
}

func TestResolveCommandUnsupported(t *testing.T) {
	// Sleep has no live measurement, so no start command exists.
	_, err := catalog.ResolveCommand(catalog.Sleep, catalog.ActionStart)
	require.Error(t, err)

	var unsupported *catalog.UnsupportedCapabilityError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, catalog.Sleep, unsupported.Capability)
	require.NotNil(t, unsupported.Action)
	assert.Equal(t, catalog.ActionStart, *unsupported.Action)
}

func TestCapabilitiesOrder(t *testing.T) {
	caps := catalog.Capabilities()

	// Registration order is the canonical enumeration order.
	assert.Equal(t, []catalog.Capability{
		catalog.HeartRate,
		catalog.HRV,
		catalog.Stress,
		catalog.BloodOxygen,
		catalog.Temperature,
		catalog.Steps,
		catalog.Sleep,
		catalog.Battery,
		catalog.DeviceInfo,
	}, caps)
}

func TestReadableExcludesHeartRate(t *testing.T) {
	readable := catalog.Readable()

	assert.NotContains(t, readable, catalog.HeartRate)
	assert.Contains(t, readable, catalog.Battery)
	assert.Contains(t, readable, catalog.Sleep)
	assert.Contains(t, readable, catalog.Steps)

	// Readable preserves enumeration order.
	assert.Equal(t, []catalog.Capability{
		catalog.HRV,
		catalog.Stress,
		catalog.BloodOxygen,
		catalog.Temperature,
		catalog.Steps,
		catalog.Sleep,
		catalog.Battery,
		catalog.DeviceInfo,
	}, readable)
}

func TestIsValid(t *testing.T) {
	for _, c := range catalog.Capabilities() {
		assert.True(t, catalog.IsValid(c), "capability %q should be valid", c)
	}
	assert.False(t, catalog.IsValid(catalog.Capability("")))
	assert.False(t, catalog.IsValid(catalog.Capability("glucose")))
}
