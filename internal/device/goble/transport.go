package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/learnzy-life/daring-health-bridge/internal/device"
)

// Transport is the go-ble implementation of device.Transport. It holds
// the live client, the discovered GATT profile, and the set of armed
// notification subscriptions.
type Transport struct {
	logger *logrus.Logger

	connMu      sync.RWMutex
	client      ble.Client
	isConnected bool
	services    map[string]map[string]*ble.Characteristic

	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[string]*ble.Characteristic

	disconnectMu sync.Mutex
	onDisconnect func()
	closing      chan struct{}
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates a disconnected transport.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{
		logger:   logger,
		services: make(map[string]map[string]*ble.Characteristic),
		subs:     make(map[string]*ble.Characteristic),
	}
}

// Connect dials the peripheral and discovers its full GATT profile.
// The caller bounds the attempt through ctx.
func (t *Transport) Connect(ctx context.Context, address string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("failed to connect: device address is not set")
	}
	if t.isConnected {
		return device.ErrAlreadyConnected
	}

	t.logger.WithField("address", address).Info("Connecting to BLE device...")

	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return fmt.Errorf("failed to connect to device %q: %w", address, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		client.CancelConnection()
		return fmt.Errorf("failed to discover profile: %w", err)
	}

	services := make(map[string]map[string]*ble.Characteristic, len(profile.Services))
	for _, svc := range profile.Services {
		svcUUID := normalizeUUID(svc.UUID.String())
		chars, ok := services[svcUUID]
		if !ok {
			chars = make(map[string]*ble.Characteristic, len(svc.Characteristics))
			services[svcUUID] = chars
		}
		for _, char := range svc.Characteristics {
			charUUID := normalizeUUID(char.UUID.String())
			t.logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    charUUID,
			}).Debug("Found characteristic")
			chars[charUUID] = char
		}
	}

	t.client = client
	t.services = services
	t.isConnected = true
	t.closing = make(chan struct{})

	go t.watchLink(client, t.closing)

	t.logger.WithField("services", len(t.services)).Info("BLE device connected")
	return nil
}

// watchLink fires the disconnect handler when the peripheral drops the
// link on its own. A voluntary Disconnect closes `closing` first, so
// the handler only runs for genuine link loss.
func (t *Transport) watchLink(client ble.Client, closing chan struct{}) {
	select {
	case <-closing:
		return
	case <-client.Disconnected():
	}

	t.connMu.Lock()
	wasConnected := t.isConnected
	t.client = nil
	t.isConnected = false
	t.connMu.Unlock()

	t.clearSubscriptions()

	if !wasConnected {
		return
	}

	t.logger.Warn("BLE link lost")

	t.disconnectMu.Lock()
	fn := t.onDisconnect
	t.disconnectMu.Unlock()
	if fn != nil {
		fn()
	}
}

// Disconnect tears the link down. Calling it while already
// disconnected is a no-op.
func (t *Transport) Disconnect() error {
	t.connMu.Lock()
	if !t.isConnected || t.client == nil {
		t.connMu.Unlock()
		t.logger.Info("Already disconnected")
		return nil
	}

	client := t.client
	closing := t.closing
	t.client = nil
	t.isConnected = false
	t.closing = nil
	t.connMu.Unlock()

	if closing != nil {
		close(closing)
	}

	// Best effort: tell the peripheral to stop notifying before the
	// link goes away.
	t.subMu.Lock()
	for key, char := range t.subs {
		if err := client.Unsubscribe(char, false); err != nil {
			t.logger.WithFields(logrus.Fields{
				"characteristic": key,
				"error":          err,
			}).Warn("Failed to unsubscribe during disconnect")
		}
	}
	t.subs = make(map[string]*ble.Characteristic)
	t.subMu.Unlock()

	err := client.CancelConnection()
	if err != nil {
		t.logger.WithField("error", err).Warn("BLE device disconnected with errors")
	} else {
		t.logger.Info("BLE device disconnected")
	}
	return err
}

// IsConnected reports the link state.
func (t *Transport) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.isConnected && t.client != nil
}

// SetDisconnectHandler registers the link-loss callback.
func (t *Transport) SetDisconnectHandler(fn func()) {
	t.disconnectMu.Lock()
	t.onDisconnect = fn
	t.disconnectMu.Unlock()
}

func (t *Transport) lookup(service, characteristic string) (ble.Client, *ble.Characteristic, error) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if !t.isConnected || t.client == nil {
		return nil, nil, device.ErrNotConnected
	}

	chars, ok := t.services[normalizeUUID(service)]
	if !ok {
		return nil, nil, fmt.Errorf("service %q not found", service)
	}
	char, ok := chars[normalizeUUID(characteristic)]
	if !ok {
		return nil, nil, fmt.Errorf("characteristic %q not found in service %q", characteristic, service)
	}
	return t.client, char, nil
}

// Read performs a single characteristic read.
func (t *Transport) Read(service, characteristic string) ([]byte, error) {
	client, char, err := t.lookup(service, characteristic)
	if err != nil {
		return nil, err
	}

	data, err := client.ReadCharacteristic(char)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %q: %w", characteristic, err)
	}
	return data, nil
}

// Write sends data to a characteristic. Writes are serialized; BLE
// stacks misbehave under interleaved ATT writes.
func (t *Transport) Write(service, characteristic string, data []byte, withResponse bool) error {
	client, char, err := t.lookup(service, characteristic)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := client.WriteCharacteristic(char, data, !withResponse); err != nil {
		return fmt.Errorf("failed to write characteristic %q: %w", characteristic, err)
	}

	t.logger.WithFields(logrus.Fields{
		"characteristic": characteristic,
		"bytes":          len(data),
	}).Debug("Wrote command")
	return nil
}

func subKey(service, characteristic string) string {
	return normalizeUUID(service) + "/" + normalizeUUID(characteristic)
}

// Subscribe arms notifications for one characteristic.
func (t *Transport) Subscribe(service, characteristic string, h device.NotificationHandler) error {
	client, char, err := t.lookup(service, characteristic)
	if err != nil {
		return err
	}

	if char.Property&ble.CharNotify == 0 && char.Property&ble.CharIndicate == 0 {
		return fmt.Errorf("characteristic %q does not support notifications", characteristic)
	}

	key := subKey(service, characteristic)

	t.subMu.Lock()
	if _, armed := t.subs[key]; armed {
		t.subMu.Unlock()
		return fmt.Errorf("characteristic %q is already subscribed", characteristic)
	}
	t.subs[key] = char
	t.subMu.Unlock()

	if err := client.Subscribe(char, false, func(data []byte) {
		h(data)
	}); err != nil {
		t.subMu.Lock()
		delete(t.subs, key)
		t.subMu.Unlock()
		return fmt.Errorf("failed to subscribe to characteristic %q: %w", characteristic, err)
	}

	t.logger.WithFields(logrus.Fields{
		"service_uuid": service,
		"char_uuid":    characteristic,
	}).Info("Subscribed to characteristic notifications")
	return nil
}

// Unsubscribe disarms notifications for one characteristic.
func (t *Transport) Unsubscribe(service, characteristic string) error {
	client, char, err := t.lookup(service, characteristic)
	if err != nil {
		return err
	}

	key := subKey(service, characteristic)

	t.subMu.Lock()
	_, armed := t.subs[key]
	delete(t.subs, key)
	t.subMu.Unlock()

	if !armed {
		return nil
	}

	if err := client.Unsubscribe(char, false); err != nil {
		return fmt.Errorf("failed to unsubscribe from characteristic %q: %w", characteristic, err)
	}
	return nil
}

func (t *Transport) clearSubscriptions() {
	t.subMu.Lock()
	t.subs = make(map[string]*ble.Characteristic)
	t.subMu.Unlock()
}
