// Package device defines the transport contract between the session
// layer and a concrete BLE stack. The session owns exactly one
// Transport at a time; everything above it speaks these interfaces.
package device

import (
	"context"
	"time"
)

// DeviceInfo describes a discovered peripheral.
//
//nolint:revive // DeviceInfo name is intentional for clarity when used as a device.DeviceInfo
type DeviceInfo interface {
	ID() string
	Name() string
	Address() string
	RSSI() int
	TxPower() *int
	IsConnectable() bool
	AdvertisedServices() []string
}

// NotificationHandler receives raw characteristic payloads. The data
// slice is only valid for the duration of the call; implementations
// copy before retaining.
type NotificationHandler func(data []byte)

// Transport is a live link to one peripheral. All methods are safe for
// concurrent use; writes to the same characteristic are serialized by
// the implementation.
type Transport interface {
	Connect(ctx context.Context, address string) error
	Disconnect() error
	IsConnected() bool

	// Read performs a single characteristic read round-trip.
	Read(service, characteristic string) ([]byte, error)

	// Write sends data to a characteristic, optionally waiting for the
	// peripheral's acknowledgement.
	Write(service, characteristic string, data []byte, withResponse bool) error

	// Subscribe arms notifications for a characteristic. One handler
	// per characteristic; a second Subscribe for the same target fails.
	Subscribe(service, characteristic string, h NotificationHandler) error
	Unsubscribe(service, characteristic string) error

	// SetDisconnectHandler registers a callback fired once when the
	// link drops without a local Disconnect call.
	SetDisconnectHandler(fn func())
}

// ScanOptions configures discovery behavior.
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options.
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// Scanner performs BLE discovery. Implementations invoke the handler
// once per discovered-or-updated peripheral; user cancellation of the
// surrounding context is a normal completion, not an error.
type Scanner interface {
	Scan(ctx context.Context, opts *ScanOptions, handler func(DeviceInfo)) error
}
