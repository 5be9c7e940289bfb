package image

import (
	"encoding/binary"
	"fmt"
)

// Typed slots are handles returned at configuration time. Read and Write
// index directly into the buffer and never allocate.

type Int32 struct{ e *Entry }
type Uint32 struct{ e *Entry }
type Int16 struct{ e *Entry }
type Uint16 struct{ e *Entry }
type Int8 struct{ e *Entry }
type Uint8 struct{ e *Entry }
type Bool struct{ e *Entry }

func (l *Layout) slot(key Key, bits uint8) (*Entry, error) {
	e, err := l.Lookup(key)
	if err != nil {
		return nil, err
	}
	if e.BitLength != bits {
		return nil, fmt.Errorf("%w: %s has %d bits, want %d", ErrWidthMismatch, key, e.BitLength, bits)
	}
	if bits >= 8 && e.bound && e.BitPosition != 0 {
		return nil, fmt.Errorf("entry %s is not byte aligned", key)
	}
	return e, nil
}

func (l *Layout) Int32(key Key) (Int32, error) {
	e, err := l.slot(key, 32)
	return Int32{e}, err
}

func (l *Layout) Uint32(key Key) (Uint32, error) {
	e, err := l.slot(key, 32)
	return Uint32{e}, err
}

func (l *Layout) Int16(key Key) (Int16, error) {
	e, err := l.slot(key, 16)
	return Int16{e}, err
}

func (l *Layout) Uint16(key Key) (Uint16, error) {
	e, err := l.slot(key, 16)
	return Uint16{e}, err
}

func (l *Layout) Int8(key Key) (Int8, error) {
	e, err := l.slot(key, 8)
	return Int8{e}, err
}

func (l *Layout) Uint8(key Key) (Uint8, error) {
	e, err := l.slot(key, 8)
	return Uint8{e}, err
}

func (l *Layout) Bool(key Key) (Bool, error) {
	e, err := l.slot(key, 1)
	return Bool{e}, err
}

func (s Int32) Read(img *Image) int32 {
	return int32(binary.LittleEndian.Uint32(img.data[s.e.ByteOffset:]))
}

func (s Int32) Write(img *Image, v int32) {
	binary.LittleEndian.PutUint32(img.data[s.e.ByteOffset:], uint32(v))
}

func (s Int32) Entry() *Entry { return s.e }

func (s Uint32) Read(img *Image) uint32 {
	return binary.LittleEndian.Uint32(img.data[s.e.ByteOffset:])
}

func (s Uint32) Write(img *Image, v uint32) {
	binary.LittleEndian.PutUint32(img.data[s.e.ByteOffset:], v)
}

func (s Uint32) Entry() *Entry { return s.e }

func (s Int16) Read(img *Image) int16 {
	return int16(binary.LittleEndian.Uint16(img.data[s.e.ByteOffset:]))
}

func (s Int16) Write(img *Image, v int16) {
	binary.LittleEndian.PutUint16(img.data[s.e.ByteOffset:], uint16(v))
}

func (s Int16) Entry() *Entry { return s.e }

func (s Uint16) Read(img *Image) uint16 {
	return binary.LittleEndian.Uint16(img.data[s.e.ByteOffset:])
}

func (s Uint16) Write(img *Image, v uint16) {
	binary.LittleEndian.PutUint16(img.data[s.e.ByteOffset:], v)
}

func (s Uint16) Entry() *Entry { return s.e }

func (s Int8) Read(img *Image) int8 {
	return int8(img.data[s.e.ByteOffset])
}

func (s Int8) Write(img *Image, v int8) {
	img.data[s.e.ByteOffset] = byte(v)
}

func (s Int8) Entry() *Entry { return s.e }

func (s Uint8) Read(img *Image) uint8 {
	return img.data[s.e.ByteOffset]
}

func (s Uint8) Write(img *Image, v uint8) {
	img.data[s.e.ByteOffset] = v
}

func (s Uint8) Entry() *Entry { return s.e }

func (s Bool) Read(img *Image) bool {
	return img.data[s.e.ByteOffset]&(1<<s.e.BitPosition) != 0
}

func (s Bool) Write(img *Image, v bool) {
	mask := byte(1) << s.e.BitPosition
	if v {
		img.data[s.e.ByteOffset] |= mask
	} else {
		img.data[s.e.ByteOffset] &^= mask
	}
}

func (s Bool) Entry() *Entry { return s.e }
