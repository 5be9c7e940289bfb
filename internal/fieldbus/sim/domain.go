package sim

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
)

type placedEntry struct {
	bit   uint64
	width uint8
	dir   types.Direction
	key   uint32
}

type placement struct {
	sc      *slaveConfig
	entries []placedEntry
	byKey   map[uint32]int
	outputs bool
	inputs  bool
}

type domain struct {
	m          *master
	placements map[*slaveConfig]*placement
	order      []*placement
	sizeBits   uint64
	data       []byte
	queued     bool
	pending    fieldbus.DomainState
	state      fieldbus.DomainState
}

// place lays out every mapped entry of a slave: each sync manager starts on a
// byte boundary, entries inside are packed bit by bit.
func (d *domain) place(sc *slaveConfig) *placement {
	if p, ok := d.placements[sc]; ok {
		return p
	}

	p := &placement{sc: sc, byKey: make(map[uint32]int)}
	for _, sm := range sc.syncs {
		if len(sm.Pdos) == 0 {
			continue
		}
		d.sizeBits = (d.sizeBits + 7) &^ 7
		for _, pdo := range sm.Pdos {
			for _, e := range pdo.Entries {
				if e.Index != 0 {
					k := objKey(e.Index, e.SubIndex)
					p.byKey[k] = len(p.entries)
					p.entries = append(p.entries, placedEntry{bit: d.sizeBits, width: e.BitLength, dir: sm.Direction, key: k})
				}
				d.sizeBits += uint64(e.BitLength)
			}
		}
		if sm.Direction == types.DirectionOutput {
			p.outputs = true
		} else {
			p.inputs = true
		}
	}
	d.sizeBits = (d.sizeBits + 7) &^ 7

	d.placements[sc] = p
	d.order = append(d.order, p)
	return p
}

func (d *domain) RegisterEntries(reqs []fieldbus.EntryRequest) ([]fieldbus.EntryLocation, error) {
	d.m.bus.mu.Lock()
	defer d.m.bus.mu.Unlock()

	if err := d.m.check(); err != nil {
		return nil, err
	}
	if d.m.activated {
		return nil, errors.New("master already activated")
	}

	locs := make([]fieldbus.EntryLocation, 0, len(reqs))
	for _, r := range reqs {
		sc := d.m.config(r.Address)
		if sc == nil {
			return nil, fmt.Errorf("no configuration for slave at %s", r.Address)
		}
		if sc.id != r.Identity {
			return nil, fmt.Errorf("slave at %s is configured as %s, not %s", r.Address, sc.id, r.Identity)
		}
		if len(sc.syncs) == 0 {
			return nil, fmt.Errorf("slave at %s has no pdo mapping", r.Address)
		}

		p := d.place(sc)
		i, ok := p.byKey[objKey(r.Index, r.SubIndex)]
		if !ok {
			return nil, fmt.Errorf("entry 0x%04x:%02x is not mapped on %s", r.Index, r.SubIndex, r.Address)
		}
		bit := p.entries[i].bit
		locs = append(locs, fieldbus.EntryLocation{ByteOffset: uint32(bit / 8), BitPosition: uint8(bit % 8)})
	}
	return locs, nil
}

func (d *domain) Data() []byte {
	d.m.bus.mu.Lock()
	defer d.m.bus.mu.Unlock()
	if !d.m.activated || d.m.released {
		return nil
	}
	return d.data
}

func (d *domain) expected() uint16 {
	var wkc uint16
	for _, p := range d.order {
		if p.outputs {
			wkc += 2
		}
		if p.inputs {
			wkc++
		}
	}
	return wkc
}

// receive copies slave inputs into the image. Called with the bus lock held.
func (d *domain) receive(lost bool) {
	d.pending = fieldbus.DomainState{ExpectedCounter: d.expected()}
	if lost {
		return
	}

	for _, p := range d.order {
		slave := p.sc.slave
		if !slave.online {
			continue
		}
		for _, e := range p.entries {
			if e.dir == types.DirectionInput {
				putBits(d.data, e.bit, e.width, slave.objects[e.key])
			}
		}
		if p.outputs {
			d.pending.WorkingCounter += 2
		}
		if p.inputs {
			d.pending.WorkingCounter++
		}
	}
}

// transmit copies outputs to the slaves. Called with the bus lock held.
func (d *domain) transmit() {
	for _, p := range d.order {
		slave := p.sc.slave
		if !slave.online {
			continue
		}
		for _, e := range p.entries {
			if e.dir == types.DirectionOutput {
				slave.objects[e.key] = getBits(d.data, e.bit, e.width)
			}
		}
		if slave.Step != nil {
			slave.Step(slave)
		}
	}
}

func (d *domain) Process() error {
	d.m.bus.mu.Lock()
	defer d.m.bus.mu.Unlock()
	d.state = d.pending
	return nil
}

func (d *domain) Queue() error {
	d.m.bus.mu.Lock()
	defer d.m.bus.mu.Unlock()
	if err := d.m.check(); err != nil {
		return err
	}
	d.queued = true
	d.m.bus.counters.Queued++
	return nil
}

func (d *domain) State() fieldbus.DomainState {
	d.m.bus.mu.Lock()
	defer d.m.bus.mu.Unlock()
	return d.state
}
