// Package testutils provides in-memory fakes for the transport layer
// and assertion helpers shared across package tests.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/learnzy-life/daring-health-bridge/internal/device"
)

func key(service, characteristic string) string {
	norm := func(u string) string {
		return strings.ToLower(strings.ReplaceAll(u, "-", ""))
	}
	return norm(service) + "/" + norm(characteristic)
}

// FakeTransport is a scriptable in-memory device.Transport. Tests
// preload characteristic values and failures, then drive notifications
// and link loss by hand.
type FakeTransport struct {
	mu sync.Mutex

	connected  bool
	ConnectErr error

	reads    map[string][]byte
	readErrs map[string]error

	writes   [][]byte
	WriteErr error
	// WriteErrOnce fails only the next write, then clears itself.
	WriteErrOnce error

	subErrs  map[string]error
	handlers map[string]device.NotificationHandler

	// ReadHook, when set, runs before each Read outside the fake's
	// lock. Tests use it to drop the link mid-operation.
	ReadHook func(service, characteristic string)

	UnsubscribeErr error
	unsubscribes   []string

	disconnectFn func()
}

var _ device.Transport = (*FakeTransport)(nil)

// NewFakeTransport returns an empty fake.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		reads:    make(map[string][]byte),
		readErrs: make(map[string]error),
		subErrs:  make(map[string]error),
		handlers: make(map[string]device.NotificationHandler),
	}
}

// SetRead scripts a characteristic read value.
func (f *FakeTransport) SetRead(service, characteristic string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[key(service, characteristic)] = data
}

// FailRead scripts a characteristic read failure.
func (f *FakeTransport) FailRead(service, characteristic string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErrs[key(service, characteristic)] = err
}

// FailSubscribe scripts a subscription failure.
func (f *FakeTransport) FailSubscribe(service, characteristic string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subErrs[key(service, characteristic)] = err
}

func (f *FakeTransport) Connect(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	if address == "" {
		return fmt.Errorf("device address is not set")
	}
	f.connected = true
	return nil
}

func (f *FakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.handlers = make(map[string]device.NotificationHandler)
	return nil
}

func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeTransport) Read(service, characteristic string) ([]byte, error) {
	f.mu.Lock()
	hook := f.ReadHook
	f.mu.Unlock()
	if hook != nil {
		hook(service, characteristic)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, device.ErrNotConnected
	}
	k := key(service, characteristic)
	if err, ok := f.readErrs[k]; ok {
		return nil, err
	}
	data, ok := f.reads[k]
	if !ok {
		return nil, fmt.Errorf("characteristic %q not found", characteristic)
	}
	return data, nil
}

func (f *FakeTransport) Write(service, characteristic string, data []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return device.ErrNotConnected
	}
	if f.WriteErrOnce != nil {
		err := f.WriteErrOnce
		f.WriteErrOnce = nil
		return err
	}
	if f.WriteErr != nil {
		return f.WriteErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.writes = append(f.writes, buf)
	return nil
}

// Writes returns every buffer written so far, in order.
func (f *FakeTransport) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *FakeTransport) Subscribe(service, characteristic string, h device.NotificationHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return device.ErrNotConnected
	}
	k := key(service, characteristic)
	if err, ok := f.subErrs[k]; ok {
		return err
	}
	if _, armed := f.handlers[k]; armed {
		return fmt.Errorf("characteristic %q is already subscribed", characteristic)
	}
	f.handlers[k] = h
	return nil
}

func (f *FakeTransport) Unsubscribe(service, characteristic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(service, characteristic)
	f.unsubscribes = append(f.unsubscribes, k)
	delete(f.handlers, k)
	if f.UnsubscribeErr != nil {
		return f.UnsubscribeErr
	}
	return nil
}

// Subscribed reports whether a handler is armed for the characteristic.
func (f *FakeTransport) Subscribed(service, characteristic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[key(service, characteristic)]
	return ok
}

// SubscriptionCount returns the number of armed handlers.
func (f *FakeTransport) SubscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *FakeTransport) SetDisconnectHandler(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectFn = fn
}

// Notify delivers a notification payload to the armed handler, as if
// the peripheral pushed it.
func (f *FakeTransport) Notify(service, characteristic string, data []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[key(service, characteristic)]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(data)
	return true
}

// DropLink simulates unsolicited link loss: the transport flips to
// disconnected and fires the registered handler.
func (f *FakeTransport) DropLink() {
	f.mu.Lock()
	f.connected = false
	f.handlers = make(map[string]device.NotificationHandler)
	fn := f.disconnectFn
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// FakeDeviceInfo implements device.DeviceInfo for tests.
type FakeDeviceInfo struct {
	DeviceID   string
	DeviceName string
	Addr       string
	Rssi       int
	Services   []string
}

var _ device.DeviceInfo = (*FakeDeviceInfo)(nil)

func (d *FakeDeviceInfo) ID() string      { return d.DeviceID }
func (d *FakeDeviceInfo) Address() string { return d.Addr }
func (d *FakeDeviceInfo) RSSI() int       { return d.Rssi }
func (d *FakeDeviceInfo) TxPower() *int   { return nil }
func (d *FakeDeviceInfo) IsConnectable() bool {
	return true
}
func (d *FakeDeviceInfo) AdvertisedServices() []string { return d.Services }
func (d *FakeDeviceInfo) Name() string {
	if d.DeviceName != "" {
		return d.DeviceName
	}
	return d.Addr
}

// FakeScanner implements device.Scanner with a scripted result set.
type FakeScanner struct {
	Results []device.DeviceInfo
	Err     error
}

var _ device.Scanner = (*FakeScanner)(nil)

func (s *FakeScanner) Scan(ctx context.Context, _ *device.ScanOptions, handler func(device.DeviceInfo)) error {
	if s.Err != nil {
		return s.Err
	}
	for _, info := range s.Results {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handler(info)
	}
	return nil
}
