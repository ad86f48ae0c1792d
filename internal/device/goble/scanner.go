package goble

import (
	"context"
	"errors"
	"fmt"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/learnzy-life/daring-health-bridge/internal/device"
)

// Scanner handles BLE device discovery. Discovered peripherals
// accumulate across repeated scans; a new scan never clears devices
// found by earlier ones.
type Scanner struct {
	devices *hashmap.Map[string, *Peripheral]
	logger  *logrus.Logger

	scanOptions *device.ScanOptions
	handler     func(device.DeviceInfo)
}

var _ device.Scanner = (*Scanner)(nil)

// NewScanner creates a BLE scanner.
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		devices: hashmap.New[string, *Peripheral](),
		logger:  logger,
	}
}

// Scan performs BLE discovery with the provided options. Context
// cancellation and deadline expiry are normal completions: the devices
// discovered so far remain available through the handler's callbacks.
func (s *Scanner) Scan(ctx context.Context, opts *device.ScanOptions, handler func(device.DeviceInfo)) error {
	if opts == nil {
		opts = device.DefaultScanOptions()
	}
	if handler == nil {
		handler = func(device.DeviceInfo) {}
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")

	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	s.handler = handler
	defer func() {
		s.scanOptions = nil
		s.handler = nil
	}()

	err = dev.Scan(scanCtx, opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	return nil
}

// handleAdvertisement updates an existing peripheral or adds a new one.
func (s *Scanner) handleAdvertisement(adv blelib.Advertisement) {
	deviceID := adv.Addr().String()

	p, existing := s.devices.Get(deviceID)
	if !existing {
		if !s.shouldIncludeDevice(adv, s.scanOptions) {
			return
		}
		p, existing = s.devices.GetOrInsert(deviceID, newPeripheral(adv))
	}

	if existing {
		p.update(adv)
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  p.Name(),
			"address": p.Address(),
			"rssi":    p.RSSI(),
		}).Info("Discovered new device")
	}

	if s.handler != nil {
		s.handler(p)
	}
}

// shouldIncludeDevice applies allow/block/service filters.
func (s *Scanner) shouldIncludeDevice(adv blelib.Advertisement, opts *device.ScanOptions) bool {
	addr := adv.Addr().String()

	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		hasRequired := false
		for _, required := range opts.ServiceUUIDs {
			for _, advUUID := range adv.Services() {
				if normalizeUUID(required) == normalizeUUID(advUUID.String()) {
					hasRequired = true
					break
				}
			}
			if hasRequired {
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	return true
}

// Devices returns a snapshot of every peripheral discovered so far.
func (s *Scanner) Devices() []device.DeviceInfo {
	devs := make([]device.DeviceInfo, 0, s.devices.Len())
	s.devices.Range(func(key string, value *Peripheral) bool {
		devs = append(devs, value)
		return true
	})
	return devs
}
