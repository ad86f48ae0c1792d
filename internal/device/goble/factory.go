// Package goble adapts the go-ble stack to the device.Transport and
// device.Scanner contracts.
package goble

import (
	"strings"

	"github.com/go-ble/ble"

	"github.com/learnzy-life/daring-health-bridge/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
var DeviceFactory = func() (ble.Device, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, wrapRadioError(err)
	}
	return dev, nil
}

// wrapRadioError maps host-radio failures onto ErrBluetoothUnavailable
// so callers can distinguish "no radio" from transient link faults.
func wrapRadioError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "central manager has invalid state"),
		strings.Contains(msg, "no default device"),
		strings.Contains(msg, "can't init hci"),
		strings.Contains(msg, "operation not permitted"):
		return &radioError{cause: err}
	default:
		return err
	}
}

type radioError struct {
	cause error
}

func (e *radioError) Error() string {
	return "bluetooth unavailable: " + e.cause.Error()
}

func (e *radioError) Is(target error) bool {
	return target == device.ErrBluetoothUnavailable
}

func (e *radioError) Unwrap() error {
	return e.cause
}

// normalizeUUID converts a UUID string to the internal BLE library
// format (lowercase, no dashes).
func normalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}
