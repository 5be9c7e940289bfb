// Package sim is an in-memory bus transport with simulated slaves. It is the
// transport used for development runs and for tests of the cyclic core.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
)

// Counters exposes what the bus observed, for tests and diagnostics.
type Counters struct {
	Receives     uint64
	Sends        uint64
	Queued       uint64
	FramesSent   uint64
	Releases     int
	AppTimeCalls int
	AppTime      uint64
	Reference    *types.BusAddress
	Activated    bool
}

// Bus implements fieldbus.Driver.
type Bus struct {
	mu         sync.Mutex
	slaves     []*Slave
	masters    uint
	active     *master
	dropFrames int
	counters   Counters
}

var _ fieldbus.Driver = (*Bus)(nil)

// NewBus creates a bus with one master (index 0) and the given slaves.
func NewBus(slaves ...*Slave) *Bus {
	return &Bus{slaves: slaves, masters: 1}
}

func (b *Bus) RequestMaster(index uint) (fieldbus.Master, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index >= b.masters {
		return nil, fmt.Errorf("master %d does not exist", index)
	}
	if b.active != nil {
		return nil, fmt.Errorf("master %d is in use", index)
	}

	b.active = &master{bus: b, index: index}
	return b.active, nil
}

// DropFrames makes the next n receives return no data.
func (b *Bus) DropFrames(n int) {
	b.mu.Lock()
	b.dropFrames = n
	b.mu.Unlock()
}

func (b *Bus) SetOnline(addr types.BusAddress, online bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slaveAt(addr); s != nil {
		s.online = online
	}
}

func (b *Bus) Object(addr types.BusAddress, index uint16, sub uint8) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slaveAt(addr); s != nil {
		return s.Object(index, sub)
	}
	return 0
}

func (b *Bus) SetObject(addr types.BusAddress, index uint16, sub uint8, v uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slaveAt(addr); s != nil {
		s.SetObject(index, sub, v)
	}
}

func (b *Bus) Counters() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters
}

func (b *Bus) slaveAt(addr types.BusAddress) *Slave {
	for _, s := range b.slaves {
		if s.Address == addr {
			return s
		}
	}
	return nil
}

type master struct {
	bus       *Bus
	index     uint
	configs   []*slaveConfig
	domains   []*domain
	activated bool
	released  bool
}

func (m *master) check() error {
	if m.released {
		return fieldbus.ErrReleased
	}
	return nil
}

func (m *master) SlaveConfig(addr types.BusAddress, id types.DeviceIdentity) (fieldbus.SlaveConfig, error) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}
	if m.activated {
		return nil, errors.New("master already activated")
	}

	for _, sc := range m.configs {
		if sc.addr == addr {
			if sc.id != id {
				return nil, fmt.Errorf("slave %s already configured as %s", addr, sc.id)
			}
			return sc, nil
		}
	}

	slave := m.bus.slaveAt(addr)
	if slave == nil {
		return nil, fmt.Errorf("no slave at %s", addr)
	}
	if slave.Identity != id {
		return nil, fmt.Errorf("slave at %s is %s, not %s", addr, slave.Identity, id)
	}

	sc := &slaveConfig{m: m, addr: addr, id: id, slave: slave}
	m.configs = append(m.configs, sc)
	return sc, nil
}

func (m *master) config(addr types.BusAddress) *slaveConfig {
	for _, sc := range m.configs {
		if sc.addr == addr {
			return sc
		}
	}
	return nil
}

func (m *master) CreateDomain() (fieldbus.Domain, error) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}
	if m.activated {
		return nil, errors.New("master already activated")
	}

	d := &domain{m: m, placements: make(map[*slaveConfig]*placement)}
	m.domains = append(m.domains, d)
	return d, nil
}

func (m *master) SelectReferenceClock(sc fieldbus.SlaveConfig) error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	own, ok := sc.(*slaveConfig)
	if !ok || own == nil || own.m != m {
		return errors.New("slave config does not belong to this master")
	}
	if !own.slave.DC {
		return fmt.Errorf("slave at %s has no distributed clock", own.addr)
	}

	addr := own.addr
	m.bus.counters.Reference = &addr
	return nil
}

func (m *master) Activate() error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	if m.activated {
		return errors.New("master already activated")
	}

	for _, d := range m.domains {
		d.data = make([]byte, (d.sizeBits+7)/8)
	}
	m.activated = true
	m.bus.counters.Activated = true
	return nil
}

func (m *master) SetApplicationTime(epochNs uint64) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()

	m.bus.counters.AppTime = epochNs
	m.bus.counters.AppTimeCalls++
}

func (m *master) Receive() error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	if !m.activated {
		return errors.New("master not activated")
	}

	m.bus.counters.Receives++
	lost := m.bus.dropFrames > 0
	if lost {
		m.bus.dropFrames--
	}

	for _, d := range m.domains {
		d.receive(lost)
	}
	return nil
}

func (m *master) Send() error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	if !m.activated {
		return errors.New("master not activated")
	}

	m.bus.counters.Sends++
	for _, d := range m.domains {
		if d.queued {
			d.transmit()
			d.queued = false
			m.bus.counters.FramesSent++
		}
	}
	return nil
}

func (m *master) Release() error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	m.released = true
	m.bus.active = nil
	m.bus.counters.Releases++
	return nil
}

type slaveConfig struct {
	m     *master
	addr  types.BusAddress
	id    types.DeviceIdentity
	slave *Slave
	syncs types.SyncManagerTable
	dc    types.DCConfig
}

func (sc *slaveConfig) Address() types.BusAddress       { return sc.addr }
func (sc *slaveConfig) Identity() types.DeviceIdentity { return sc.id }

func (sc *slaveConfig) ConfigPDOs(syncs types.SyncManagerTable) error {
	sc.m.bus.mu.Lock()
	defer sc.m.bus.mu.Unlock()

	if err := sc.m.check(); err != nil {
		return err
	}
	if err := syncs.Validate(); err != nil {
		return err
	}
	for _, e := range syncs.Entries() {
		if !sc.slave.has(e.Index, e.SubIndex) {
			return fmt.Errorf("object 0x%04x:%02x is not mappable on %s", e.Index, e.SubIndex, sc.addr)
		}
	}
	sc.syncs = syncs
	return nil
}

func (sc *slaveConfig) ConfigDC(dc types.DCConfig) {
	sc.m.bus.mu.Lock()
	defer sc.m.bus.mu.Unlock()
	sc.dc = dc
}

// DC returns the distributed clock parameters submitted for the slave at addr.
func (b *Bus) DC(addr types.BusAddress) (types.DCConfig, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return types.DCConfig{}, false
	}
	if sc := b.active.config(addr); sc != nil {
		return sc.dc, true
	}
	return types.DCConfig{}, false
}
