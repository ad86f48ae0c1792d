package main

import (
	"errors"
	"fmt"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/device"
	"github.com/learnzy-life/daring-health-bridge/internal/measure"
)

// FormatUserError maps internal errors to messages suitable for a
// terminal user. Unknown errors pass through unchanged.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, device.ErrBluetoothUnavailable):
		return "Bluetooth is unavailable - check that the adapter is present and powered on"
	case errors.Is(err, device.ErrLinkLost):
		return "connection to the ring was lost - move it closer and retry"
	case errors.Is(err, device.ErrAlreadyConnecting):
		return "a connection attempt is already in progress"
	case errors.Is(err, device.ErrAlreadyConnected):
		return "already connected - disconnect first to switch devices"
	case errors.Is(err, device.ErrNotConnected):
		return "not connected to a ring - run a scan and connect first"
	}

	var unavailable *measure.MeasurementUnavailableError
	if errors.As(err, &unavailable) {
		return fmt.Sprintf("the ring cannot measure %s right now: %v", unavailable.Capability, unavailable.Cause)
	}

	var unsupported *catalog.UnsupportedCapabilityError
	if errors.As(err, &unsupported) {
		return fmt.Sprintf("unknown measurement %q - valid values: %s", unsupported.Capability, capabilityList())
	}

	return err.Error()
}

func capabilityList() string {
	caps := catalog.Capabilities()
	out := ""
	for i, c := range caps {
		if i > 0 {
			out += ", "
		}
		out += string(c)
	}
	return out
}
