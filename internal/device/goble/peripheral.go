package goble

import (
	"sync"

	"github.com/go-ble/ble"

	"github.com/learnzy-life/daring-health-bridge/internal/device"
)

// txPowerNotAvailable is the sentinel go-ble reports when the
// advertisement carried no TX power field.
const txPowerNotAvailable = 127

// Peripheral is a discovered device, updated in place as repeated
// advertisements arrive during and across scans.
type Peripheral struct {
	mu          sync.RWMutex
	id          string
	name        string
	address     string
	rssi        int
	txPower     *int
	connectable bool
	services    []string
}

var _ device.DeviceInfo = (*Peripheral)(nil)

func newPeripheral(adv ble.Advertisement) *Peripheral {
	p := &Peripheral{
		id:      adv.Addr().String(),
		address: adv.Addr().String(),
	}
	p.update(adv)
	return p
}

// update refreshes the mutable advertisement fields. The name is
// sticky: once a peripheral has advertised a local name, later nameless
// advertisements do not clear it.
func (p *Peripheral) update(adv ble.Advertisement) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name := adv.LocalName(); name != "" {
		p.name = name
	}
	p.rssi = adv.RSSI()
	p.connectable = adv.Connectable()

	if tx := adv.TxPowerLevel(); tx != txPowerNotAvailable {
		txCopy := tx
		p.txPower = &txCopy
	}

	if svcs := adv.Services(); len(svcs) > 0 {
		p.services = make([]string, 0, len(svcs))
		for _, s := range svcs {
			p.services = append(p.services, normalizeUUID(s.String()))
		}
	}
}

func (p *Peripheral) ID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id
}

// Name returns the advertised local name, falling back to the address.
func (p *Peripheral) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.name != "" {
		return p.name
	}
	return p.address
}

func (p *Peripheral) Address() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.address
}

func (p *Peripheral) RSSI() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rssi
}

func (p *Peripheral) TxPower() *int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.txPower
}

func (p *Peripheral) IsConnectable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connectable
}

func (p *Peripheral) AdvertisedServices() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.services))
	copy(out, p.services)
	return out
}
