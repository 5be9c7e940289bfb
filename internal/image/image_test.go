package image

import (
	"testing"

	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var servo = types.DeviceIdentity{VendorID: 0x5a65726f, ProductCode: 0x00029252}

func key(pos uint16, index uint16) Key {
	return Key{Address: types.BusAddress{Position: pos}, Identity: servo, Index: index}
}

func TestLayoutRejectsDuplicateRegistration(t *testing.T) {
	l := NewLayout()
	_, err := l.Add(key(0, 0x6064), 32, types.DirectionInput)
	require.NoError(t, err)

	_, err = l.Add(key(0, 0x6064), 32, types.DirectionInput)
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	// same object on a different slave is a different entry
	_, err = l.Add(key(1, 0x6064), 32, types.DirectionInput)
	assert.NoError(t, err)
}

func TestFinalizeRejectsOverlap(t *testing.T) {
	l := NewLayout()
	a, _ := l.Add(key(0, 0x607a), 32, types.DirectionOutput)
	b, _ := l.Add(key(0, 0x6040), 16, types.DirectionOutput)
	require.NoError(t, l.Bind(a, 0, 0))
	require.NoError(t, l.Bind(b, 2, 0))

	_, err := l.Finalize(make([]byte, 8))
	assert.ErrorContains(t, err, "overlaps")
}

func TestFinalizeRejectsUnboundAndOutOfRange(t *testing.T) {
	l := NewLayout()
	a, _ := l.Add(key(0, 0x607a), 32, types.DirectionOutput)
	_, err := l.Finalize(make([]byte, 8))
	assert.ErrorContains(t, err, "no offset")

	require.NoError(t, l.Bind(a, 6, 0))
	_, err = l.Finalize(make([]byte, 8))
	assert.ErrorContains(t, err, "exceeds")
}

func TestBindIsOneWay(t *testing.T) {
	l := NewLayout()
	a, _ := l.Add(key(0, 0x607a), 32, types.DirectionOutput)
	require.NoError(t, l.Bind(a, 0, 0))
	assert.Error(t, l.Bind(a, 4, 0))

	img, err := l.Finalize(make([]byte, 4))
	require.NoError(t, err)
	assert.True(t, img.Layout().Sealed())

	_, err = l.Add(key(0, 0x6040), 16, types.DirectionOutput)
	assert.ErrorIs(t, err, ErrSealed)
	assert.ErrorIs(t, l.Bind(a, 0, 0), ErrSealed)
}

func TestSlotsRoundTripWithinCycle(t *testing.T) {
	l := NewLayout()
	cw, _ := l.Add(key(0, 0x6040), 16, types.DirectionOutput)
	tp, _ := l.Add(key(0, 0x607a), 32, types.DirectionOutput)
	tq, _ := l.Add(key(0, 0x6071), 16, types.DirectionOutput)
	flag, _ := l.Add(key(0, 0x2000), 1, types.DirectionOutput)
	flag2, _ := l.Add(key(0, 0x2001), 1, types.DirectionOutput)
	require.NoError(t, l.Bind(cw, 0, 0))
	require.NoError(t, l.Bind(tp, 2, 0))
	require.NoError(t, l.Bind(tq, 6, 0))
	require.NoError(t, l.Bind(flag, 8, 0))
	require.NoError(t, l.Bind(flag2, 8, 1))

	controlword, err := l.Uint16(key(0, 0x6040))
	require.NoError(t, err)
	target, err := l.Int32(key(0, 0x607a))
	require.NoError(t, err)
	torque, err := l.Int16(key(0, 0x6071))
	require.NoError(t, err)
	bit0, err := l.Bool(key(0, 0x2000))
	require.NoError(t, err)
	bit1, err := l.Bool(key(0, 0x2001))
	require.NoError(t, err)

	img, err := l.Finalize(make([]byte, 9))
	require.NoError(t, err)

	controlword.Write(img, 0x000f)
	target.Write(img, -123456)
	torque.Write(img, -300)
	bit1.Write(img, true)

	assert.Equal(t, uint16(0x000f), controlword.Read(img))
	assert.Equal(t, int32(-123456), target.Read(img))
	assert.Equal(t, int16(-300), torque.Read(img))
	assert.False(t, bit0.Read(img))
	assert.True(t, bit1.Read(img))
	assert.Equal(t, byte(0x02), img.Bytes()[8])

	// little endian on the wire
	assert.Equal(t, []byte{0xc0, 0x1d, 0xfe, 0xff}, img.Bytes()[2:6])

	bit1.Write(img, false)
	assert.Equal(t, byte(0x00), img.Bytes()[8])
}

func TestSlotWidthMismatch(t *testing.T) {
	l := NewLayout()
	_, _ = l.Add(key(0, 0x6041), 16, types.DirectionInput)

	_, err := l.Int32(key(0, 0x6041))
	assert.ErrorIs(t, err, ErrWidthMismatch)

	_, err = l.Int32(key(0, 0x6064))
	assert.ErrorIs(t, err, ErrUnknownEntry)
}

func TestRegisteredOffsetsArePairwiseDisjoint(t *testing.T) {
	l := NewLayout()
	var bit uint32
	for pos := uint16(0); pos < 4; pos++ {
		for _, idx := range []uint16{0x6040, 0x607a, 0x6041, 0x6064} {
			width := uint8(32)
			if idx == 0x6040 || idx == 0x6041 {
				width = 16
			}
			e, err := l.Add(key(pos, idx), width, types.DirectionInput)
			require.NoError(t, err)
			require.NoError(t, l.Bind(e, bit/8, 0))
			bit += uint32(width)
		}
	}

	img, err := l.Finalize(make([]byte, bit/8))
	require.NoError(t, err)

	entries := img.Layout().Entries()
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			disjoint := a.endBit() <= b.startBit() || b.endBit() <= a.startBit()
			assert.True(t, disjoint, "%s overlaps %s", a.Key, b.Key)
		}
	}
}
