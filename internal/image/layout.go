// Package image implements the shared process image: a single contiguous byte
// buffer plus the table of registered PDO entries and their offsets.
package image

import (
	"errors"
	"fmt"
	"sort"

	"github.com/KevinKickass/OpenMotionCore/internal/types"
)

var (
	ErrDuplicateEntry = errors.New("entry already registered")
	ErrUnknownEntry   = errors.New("entry not registered")
	ErrSealed         = errors.New("process image already finalized")
	ErrWidthMismatch  = errors.New("entry width does not match slot type")
)

// Key identifies one registered entry.
type Key struct {
	Address  types.BusAddress
	Identity types.DeviceIdentity
	Index    uint16
	SubIndex uint8
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/0x%04x:%02x", k.Address, k.Identity, k.Index, k.SubIndex)
}

// Entry is one registered value. Offsets are filled exactly once by Bind.
type Entry struct {
	Key
	BitLength   uint8
	Direction   types.Direction
	ByteOffset  uint32
	BitPosition uint8
	bound       bool
}

// Bound reports whether the transport has assigned an offset.
func (e *Entry) Bound() bool { return e.bound }

func (e *Entry) startBit() uint64 { return uint64(e.ByteOffset)*8 + uint64(e.BitPosition) }
func (e *Entry) endBit() uint64   { return e.startBit() + uint64(e.BitLength) }

// Layout collects entries during configuration. It is not safe for concurrent use.
type Layout struct {
	entries []*Entry
	index   map[Key]*Entry
	sealed  bool
}

func NewLayout() *Layout {
	return &Layout{index: make(map[Key]*Entry)}
}

// Add registers an entry. Registering the same key twice fails.
func (l *Layout) Add(key Key, bitLength uint8, dir types.Direction) (*Entry, error) {
	if l.sealed {
		return nil, ErrSealed
	}
	if bitLength == 0 || bitLength > 64 {
		return nil, fmt.Errorf("entry %s: invalid bit length %d", key, bitLength)
	}
	if _, exists := l.index[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, key)
	}

	e := &Entry{Key: key, BitLength: bitLength, Direction: dir}
	l.entries = append(l.entries, e)
	l.index[key] = e
	return e, nil
}

// Bind stores the offset computed by the transport. One-way: a bound entry can't be rebound.
func (l *Layout) Bind(e *Entry, byteOffset uint32, bitPosition uint8) error {
	if l.sealed {
		return ErrSealed
	}
	if e.bound {
		return fmt.Errorf("entry %s already bound at %d.%d", e.Key, e.ByteOffset, e.BitPosition)
	}
	if bitPosition > 7 {
		return fmt.Errorf("entry %s: bit position %d out of range", e.Key, bitPosition)
	}
	e.ByteOffset = byteOffset
	e.BitPosition = bitPosition
	e.bound = true
	return nil
}

// Lookup returns the registered entry for key.
func (l *Layout) Lookup(key Key) (*Entry, error) {
	e, ok := l.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, key)
	}
	return e, nil
}

// Entries returns the entries in registration order.
func (l *Layout) Entries() []*Entry {
	return l.entries
}

func (l *Layout) Len() int {
	return len(l.entries)
}

// Finalize validates the layout against the transport's buffer and seals it.
func (l *Layout) Finalize(data []byte) (*Image, error) {
	if l.sealed {
		return nil, ErrSealed
	}
	if data == nil {
		return nil, fmt.Errorf("process image buffer is nil")
	}

	sorted := make([]*Entry, len(l.entries))
	copy(sorted, l.entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].startBit() < sorted[j].startBit() })

	sizeBits := uint64(len(data)) * 8
	for i, e := range sorted {
		if !e.bound {
			return nil, fmt.Errorf("entry %s has no offset", e.Key)
		}
		if e.endBit() > sizeBits {
			return nil, fmt.Errorf("entry %s (%d bits at %d.%d) exceeds image of %d bytes",
				e.Key, e.BitLength, e.ByteOffset, e.BitPosition, len(data))
		}
		if i > 0 && sorted[i-1].endBit() > e.startBit() {
			return nil, fmt.Errorf("entry %s overlaps %s", e.Key, sorted[i-1].Key)
		}
	}

	l.sealed = true
	return &Image{data: data, layout: l}, nil
}

// Sealed reports whether Finalize succeeded.
func (l *Layout) Sealed() bool {
	return l.sealed
}
